package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/repository"
)

const (
	complaintPrefix = "CMP"
	supportPrefix   = "TKT"
	// codeSeed is the implied maximum when no code exists yet, so the first code ends in 1000.
	codeSeed int64 = 999
)

// CodePrefix returns the issue code prefix for t.
func CodePrefix(t domain.IssueType) string {
	if t == domain.IssueTypeComplaint {
		return complaintPrefix
	}
	return supportPrefix
}

// FormatIssueCode renders PREFIX-N.
func FormatIssueCode(prefix string, n int64) string {
	return prefix + "-" + strconv.FormatInt(n, 10)
}

// ParseIssueCode splits a code into prefix and numeric suffix.
func ParseIssueCode(code string) (string, int64, bool) {
	idx := strings.LastIndex(code, "-")
	if idx <= 0 || idx == len(code)-1 {
		return "", 0, false
	}
	n, err := strconv.ParseInt(code[idx+1:], 10, 64)
	if err != nil || n < 0 {
		return "", 0, false
	}
	return code[:idx], n, true
}

// IssueCodeAllocator hands out codes from a per-prefix counter. The counter is
// seeded from the highest existing code the first time a prefix is used.
type IssueCodeAllocator struct {
	issues    repository.IssueRepository
	sequences repository.IssueCodeSequenceRepository
}

// NewIssueCodeAllocator constructs the allocator.
func NewIssueCodeAllocator(issues repository.IssueRepository, sequences repository.IssueCodeSequenceRepository) *IssueCodeAllocator {
	return &IssueCodeAllocator{issues: issues, sequences: sequences}
}

// Allocate returns the next code for issueType. Call it inside the
// transaction that inserts the issue; the counter row stays locked until commit.
func (a *IssueCodeAllocator) Allocate(ctx context.Context, issueType domain.IssueType) (string, error) {
	prefix := CodePrefix(issueType)

	next, found, err := a.sequences.Next(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("advance %s sequence: %w", prefix, err)
	}
	if found {
		return FormatIssueCode(prefix, next), nil
	}

	return a.Reseed(ctx, issueType)
}

// Reseed moves the counter past the highest code already stored and returns
// the next code. Used on first use of a prefix and after a collision with a
// code the counter did not hand out.
func (a *IssueCodeAllocator) Reseed(ctx context.Context, issueType domain.IssueType) (string, error) {
	prefix := CodePrefix(issueType)
	codes, err := a.issues.ListCodes(ctx, issueType, prefix)
	if err != nil {
		return "", fmt.Errorf("scan %s codes: %w", prefix, err)
	}
	next, err := a.sequences.Init(ctx, prefix, MaxCodeSuffix(prefix, codes))
	if err != nil {
		return "", fmt.Errorf("init %s sequence: %w", prefix, err)
	}
	return FormatIssueCode(prefix, next), nil
}

// MaxCodeSuffix returns the largest suffix among codes with prefix, or 999.
// Malformed codes are skipped.
func MaxCodeSuffix(prefix string, codes []string) int64 {
	highest := codeSeed
	for _, code := range codes {
		p, n, ok := ParseIssueCode(code)
		if !ok || p != prefix {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest
}
