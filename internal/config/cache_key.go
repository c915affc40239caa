package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// LearnerSessionKey holds the JWT of the learner's only valid device.
func (r *CacheKeyStruct) LearnerSessionKey(learnerID int) string {
	return fmt.Sprintf("login:%d", learnerID)
}

// AttemptAnswersKey is a hash of question index -> option index.
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

// AttemptFlagsKey is a set of flagged question indices.
func (r *CacheKeyStruct) AttemptFlagsKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:flags", attemptID)
}

// AttemptResultKey holds the scored result JSON once submitted.
func (r *CacheKeyStruct) AttemptResultKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:result", attemptID)
}

// BankPayloadKey holds a question bank as JSON.
func (r *CacheKeyStruct) BankPayloadKey(bankSlug string) string {
	return fmt.Sprintf("bank:%s:payload", bankSlug)
}

// WidgetPreferenceKey holds a learner's voice widget preference JSON.
func (r *CacheKeyStruct) WidgetPreferenceKey(learnerID int) string {
	return fmt.Sprintf("learner:%d:widget", learnerID)
}

var CacheKey = NewCacheKeyStruct()
