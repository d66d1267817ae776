package handlers

import "github.com/scottschroeder/storyestimate/internal/models"

// SessionStateRequest asks for a session to move to a state
type SessionStateRequest struct {
	State *models.SessionState `json:"state"`
}

// NicknameRequest is the body of a join or rename
type NicknameRequest struct {
	Nickname *string `json:"nickname"`
}

// VoteRequest places a vote
type VoteRequest struct {
	Vote *uint32 `json:"vote"`
}
