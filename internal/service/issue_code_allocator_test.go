package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/issue-service/internal/domain"
)

func TestParseIssueCode(t *testing.T) {
	tests := []struct {
		code   string
		prefix string
		n      int64
		ok     bool
	}{
		{"CMP-1000", "CMP", 1000, true},
		{"TKT-42", "TKT", 42, true},
		{"CMP-abc", "", 0, false},
		{"CMP-", "", 0, false},
		{"1000", "", 0, false},
		{"-1000", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			prefix, n, ok := ParseIssueCode(tt.code)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.prefix, prefix)
			assert.Equal(t, tt.n, n)
		})
	}
}

func TestMaxCodeSuffixIgnoresMalformedAndForeignCodes(t *testing.T) {
	assert.Equal(t, int64(999), MaxCodeSuffix("CMP", nil))
	assert.Equal(t, int64(1500), MaxCodeSuffix("CMP", []string{"CMP-1002", "CMP-oops", "CMP-1500", "TKT-9000"}))
}

func TestAllocateIsPerTypeAndIncreasing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var codes []string
	for _, typ := range []domain.IssueType{domain.IssueTypeComplaint, domain.IssueTypeComplaint, domain.IssueTypeSupport, domain.IssueTypeComplaint} {
		issue, err := h.issues.CreateIssue(ctx, CreateIssueInput{Issue: "Noise", Type: typ}, 1)
		require.NoError(t, err)
		codes = append(codes, issue.IssueCode)
	}
	assert.Equal(t, []string{"CMP-1000", "CMP-1001", "TKT-1000", "CMP-1002"}, codes)
}

func TestAllocateSeedsFromExistingCodes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, code := range []string{"CMP-1500", "CMP-legacy"} {
		require.NoError(t, h.store.Issues().Create(ctx, &domain.Issue{
			IssueCode: code, Issue: "imported", Type: domain.IssueTypeComplaint,
			Status: domain.IssueStatusActive, IssueStatus: domain.WorkflowStatusOpen, Priority: domain.IssuePriorityLow, CreatedByID: 1,
		}))
	}

	code, err := h.allocator.Allocate(ctx, domain.IssueTypeComplaint)
	require.NoError(t, err)
	assert.Equal(t, "CMP-1501", code)

	code, err = h.allocator.Allocate(ctx, domain.IssueTypeComplaint)
	require.NoError(t, err)
	assert.Equal(t, "CMP-1502", code)
}
