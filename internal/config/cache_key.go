package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamSessionKey returns the snapshot key of an exam session in a given mode
func (r *CacheKeyStruct) ExamSessionKey(examID, mode string) string {
	return fmt.Sprintf("exam_session_%s_%s", examID, mode)
}

// CandidateScope returns the key prefix isolating one candidate's snapshots
func (r *CacheKeyStruct) CandidateScope(candidateID string) string {
	return fmt.Sprintf("candidate:%s:", candidateID)
}

// ActiveSessionKey identifies a mounted session in the in-process registry
func (r *CacheKeyStruct) ActiveSessionKey(candidateID, examID, mode string) string {
	return fmt.Sprintf("candidate:%s:exam:%s:%s", candidateID, examID, mode)
}

var CacheKey = NewCacheKeyStruct()
