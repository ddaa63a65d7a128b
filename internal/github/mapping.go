package github

import (
	"sort"
	"strconv"
	"strings"

	"tracker/api/internal/store"
)

const trailerPrefix = "_Created by "

func withAuthorTrailer(description, author string) string {
	if strings.TrimSpace(author) == "" {
		return description
	}
	trailer := trailerPrefix + author + " via issue tracker_"
	if strings.TrimSpace(description) == "" {
		return trailer
	}
	return description + "\n\n" + trailer
}

func formatCommentBody(author, text string) string {
	if strings.TrimSpace(author) == "" {
		return text
	}
	return "**" + author + "**: " + text
}

// parseCommentBody reverses formatCommentBody. Comments written on GitHub
// directly keep their login as author.
func parseCommentBody(body, login string) (string, string) {
	if strings.HasPrefix(body, "**") {
		if author, text, ok := strings.Cut(body[2:], "**: "); ok && author != "" && !strings.Contains(author, "\n") {
			return author, text
		}
	}
	return login, body
}

// ToIssue maps a remote issue into the mirror. Remote issues carry no
// comments in the mirror; they are read through on demand.
func ToIssue(remote Issue) store.Issue {
	status, err := store.ParseStatus(remote.State)
	if err != nil {
		status = store.StatusOpen
	}

	issue := store.Issue{
		ID:          remote.Number,
		Title:       remote.Title,
		Description: remote.Body,
		Status:      status,
		Comments:    []store.Comment{},
		RemoteURL:   remote.HTMLURL,
	}
	if remote.ID != 0 {
		issue.RemoteID = strconv.FormatInt(remote.ID, 10)
	}
	if remote.User != nil {
		issue.CreatedBy = remote.User.Login
	}
	if remote.CreatedAt != nil {
		issue.CreatedAt = remote.CreatedAt.UTC()
	}
	if remote.UpdatedAt != nil && remote.UpdatedAt.After(issue.CreatedAt) {
		updated := remote.UpdatedAt.UTC()
		issue.UpdatedAt = &updated
	}
	return issue
}

// ToIssues maps and orders a remote listing by id.
func ToIssues(remote []Issue) []store.Issue {
	out := make([]store.Issue, 0, len(remote))
	for _, item := range remote {
		out = append(out, ToIssue(item))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func ToComment(remote Comment) store.Comment {
	login := ""
	if remote.User != nil {
		login = remote.User.Login
	}
	author, text := parseCommentBody(remote.Body, login)
	comment := store.Comment{Author: author, Text: text}
	if remote.CreatedAt != nil {
		comment.Timestamp = remote.CreatedAt.UTC()
	}
	return comment
}

func ToComments(remote []Comment) []store.Comment {
	out := make([]store.Comment, 0, len(remote))
	for _, item := range remote {
		out = append(out, ToComment(item))
	}
	return out
}
