package model

import "time"

// Learner is a user who sits mock exams.
type Learner struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// LearnerLoginRequest is the payload for learner authentication.
type LearnerLoginRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=4,max=128"`
}

// LearnerLoginResponse is returned after successful login.
type LearnerLoginResponse struct {
	Token   string  `json:"token"`
	Learner Learner `json:"learner"`
}
