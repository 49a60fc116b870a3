// Package memory holds an in-process implementation of the repository
// contracts, used when no database is configured and throughout the tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/repository"
)

type txKey struct{}

type state struct {
	issues           map[int64]domain.Issue
	activities       map[int64]domain.IssueActivity
	escalations      map[int64]domain.IssueEscalation
	sequences        map[string]int64
	nextIssueID      int64
	nextActivityID   int64
	nextEscalationID int64
}

func (s state) clone() state {
	c := state{
		issues:           make(map[int64]domain.Issue, len(s.issues)),
		activities:       make(map[int64]domain.IssueActivity, len(s.activities)),
		escalations:      make(map[int64]domain.IssueEscalation, len(s.escalations)),
		sequences:        make(map[string]int64, len(s.sequences)),
		nextIssueID:      s.nextIssueID,
		nextActivityID:   s.nextActivityID,
		nextEscalationID: s.nextEscalationID,
	}
	for k, v := range s.issues {
		c.issues[k] = v
	}
	for k, v := range s.activities {
		c.activities[k] = v
	}
	for k, v := range s.escalations {
		c.escalations[k] = v
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	return c
}

// Store keeps every table in maps guarded by one mutex. A transaction holds
// the mutex for its whole duration and restores a snapshot on failure.
type Store struct {
	mu         sync.Mutex
	now        func() time.Time
	data       state
	users      map[int64]domain.User
	properties map[int64]domain.Property
	failures   map[string]error
	openRefs   bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithOpenDirectories makes every positive user and property id exist.
// Used when serving without Postgres, where no directory tables exist.
func WithOpenDirectories() Option {
	return func(s *Store) { s.openRefs = true }
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now: time.Now,
		data: state{
			issues:      map[int64]domain.Issue{},
			activities:  map[int64]domain.IssueActivity{},
			escalations: map[int64]domain.IssueEscalation{},
			sequences:   map[string]int64{},
		},
		users:      map[int64]domain.User{},
		properties: map[int64]domain.Property{},
		failures:   map[string]error{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddUser registers a user for existence checks.
func (s *Store) AddUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// AddProperty registers a property for existence checks.
func (s *Store) AddProperty(p domain.Property) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.properties[p.ID] = p
}

// FailNext makes the next call of op (for example "activities.create")
// return err. Used to exercise rollback paths.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// TxManager runs functions inside a store transaction.
func (s *Store) TxManager() repository.TxManager {
	return txManager{s}
}

func (s *Store) Issues() repository.IssueRepository {
	return issueRepo{s}
}

func (s *Store) Activities() repository.ActivityRepository {
	return activityRepo{s}
}

func (s *Store) Escalations() repository.EscalationRepository {
	return escalationRepo{s}
}

func (s *Store) Sequences() repository.IssueCodeSequenceRepository {
	return sequenceRepo{s}
}

// Users answers from users registered with AddUser.
func (s *Store) Users() repository.UserDirectory {
	return userDirectory{s}
}

// Properties answers from properties registered with AddProperty.
func (s *Store) Properties() repository.PropertyDirectory {
	return propertyDirectory{s}
}

// Repositories bundles every view.
func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		TxManager:   s.TxManager(),
		Issues:      s.Issues(),
		Activities:  s.Activities(),
		Escalations: s.Escalations(),
		Sequences:   s.Sequences(),
		Users:       s.Users(),
		Properties:  s.Properties(),
	}
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// acquire locks the store unless ctx already runs inside its transaction.
func (s *Store) acquire(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// failure must be called with the lock held.
func (s *Store) failure(op string) error {
	if err, ok := s.failures[op]; ok {
		delete(s.failures, op)
		return err
	}
	return nil
}

type txManager struct{ s *Store }

func (m txManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	s := m.s
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.data.clone()

	defer func() {
		if p := recover(); p != nil {
			s.data = snapshot
			panic(p)
		}
		if err != nil {
			s.data = snapshot
		}
	}()

	err = fn(context.WithValue(ctx, txKey{}, s))
	return err
}

type issueRepo struct{ s *Store }

func (r issueRepo) Create(ctx context.Context, issue *domain.Issue) error {
	s := r.s
	defer s.acquire(ctx)()
	if err := s.failure("issues.create"); err != nil {
		return err
	}
	for _, existing := range s.data.issues {
		if existing.Type == issue.Type && existing.IssueCode == issue.IssueCode {
			return repository.ErrDuplicateIssueCode
		}
	}
	if issue.Attachments == nil {
		issue.Attachments = []string{}
	}
	s.data.nextIssueID++
	now := s.now()
	issue.ID = s.data.nextIssueID
	issue.CreatedOn = now
	issue.UpdatedAt = now
	s.data.issues[issue.ID] = *issue.Clone()
	return nil
}

func (r issueRepo) Update(ctx context.Context, issue *domain.Issue) error {
	s := r.s
	defer s.acquire(ctx)()
	if err := s.failure("issues.update"); err != nil {
		return err
	}
	existing, ok := s.data.issues[issue.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if issue.Attachments == nil {
		issue.Attachments = []string{}
	}
	issue.IssueCode = existing.IssueCode
	issue.Type = existing.Type
	issue.CreatedByID = existing.CreatedByID
	issue.CreatedOn = existing.CreatedOn
	issue.UpdatedAt = s.now()
	s.data.issues[issue.ID] = *issue.Clone()
	return nil
}

func (r issueRepo) GetByID(ctx context.Context, id int64) (*domain.Issue, error) {
	s := r.s
	defer s.acquire(ctx)()
	issue, ok := s.data.issues[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return issue.Clone(), nil
}

func (r issueRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Issue, error) {
	return r.GetByID(ctx, id)
}

func (r issueRepo) List(ctx context.Context, filter repository.IssueFilter) ([]domain.Issue, int64, error) {
	s := r.s
	defer s.acquire(ctx)()
	if err := s.failure("issues.list"); err != nil {
		return nil, 0, err
	}

	var matched []domain.Issue
	for _, issue := range s.data.issues {
		if matches(issue, filter) {
			matched = append(matched, *issue.Clone())
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedOn.Equal(matched[j].CreatedOn) {
			return matched[i].CreatedOn.After(matched[j].CreatedOn)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	return window(matched, filter.Offset, filter.Limit), total, nil
}

func (r issueRepo) ListCodes(ctx context.Context, issueType domain.IssueType, prefix string) ([]string, error) {
	s := r.s
	defer s.acquire(ctx)()
	var codes []string
	for _, issue := range s.data.issues {
		if issue.Type == issueType && strings.HasPrefix(issue.IssueCode, prefix+"-") {
			codes = append(codes, issue.IssueCode)
		}
	}
	return codes, nil
}

func matches(issue domain.Issue, f repository.IssueFilter) bool {
	if f.Status != nil {
		if issue.Status != *f.Status {
			return false
		}
	} else if issue.Status == domain.IssueStatusDeleted {
		return false
	}
	if f.Type != nil && issue.Type != *f.Type {
		return false
	}
	if f.IssueStatus != nil && issue.IssueStatus != *f.IssueStatus {
		return false
	}
	if f.Priority != nil && issue.Priority != *f.Priority {
		return false
	}
	if f.CreatedByID != nil && issue.CreatedByID != *f.CreatedByID {
		return false
	}
	if f.AssignedToID != nil && (issue.AssignedToID == nil || *issue.AssignedToID != *f.AssignedToID) {
		return false
	}
	if f.PropertyID != nil && (issue.PropertyID == nil || *issue.PropertyID != *f.PropertyID) {
		return false
	}
	if f.Search != nil {
		term := strings.ToLower(strings.TrimSpace(*f.Search))
		if term != "" && !strings.Contains(strings.ToLower(issue.Issue), term) {
			return false
		}
	}
	return true
}

func window[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

type activityRepo struct{ s *Store }

func (r activityRepo) Create(ctx context.Context, activity *domain.IssueActivity) error {
	s := r.s
	defer s.acquire(ctx)()
	if err := s.failure("activities.create"); err != nil {
		return err
	}
	if _, ok := s.data.issues[activity.IssueID]; !ok {
		return repository.ErrNotFound
	}
	s.data.nextActivityID++
	activity.ID = s.data.nextActivityID
	activity.CreatedAt = s.now()
	s.data.activities[activity.ID] = *activity.Clone()
	return nil
}

func (r activityRepo) ListByIssue(ctx context.Context, issueID int64, offset, limit int) ([]domain.IssueActivity, error) {
	s := r.s
	defer s.acquire(ctx)()
	var result []domain.IssueActivity
	for _, a := range s.data.activities {
		if a.IssueID == issueID {
			result = append(result, *a.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return window(result, offset, limit), nil
}

func (r activityRepo) CountByIssue(ctx context.Context, issueID int64) (int64, error) {
	s := r.s
	defer s.acquire(ctx)()
	var n int64
	for _, a := range s.data.activities {
		if a.IssueID == issueID {
			n++
		}
	}
	return n, nil
}

type escalationRepo struct{ s *Store }

func (r escalationRepo) Create(ctx context.Context, escalation *domain.IssueEscalation) error {
	s := r.s
	defer s.acquire(ctx)()
	if err := s.failure("escalations.create"); err != nil {
		return err
	}
	if _, ok := s.data.issues[escalation.IssueID]; !ok {
		return repository.ErrNotFound
	}
	s.data.nextEscalationID++
	now := s.now()
	escalation.ID = s.data.nextEscalationID
	escalation.CreatedAt = now
	escalation.UpdatedAt = now
	s.data.escalations[escalation.ID] = *escalation.Clone()
	return nil
}

func (r escalationRepo) Update(ctx context.Context, escalation *domain.IssueEscalation) error {
	s := r.s
	defer s.acquire(ctx)()
	if err := s.failure("escalations.update"); err != nil {
		return err
	}
	existing, ok := s.data.escalations[escalation.ID]
	if !ok {
		return repository.ErrNotFound
	}
	incoming := escalation.Clone()
	existing.Notes = incoming.Notes
	existing.Resolved = incoming.Resolved
	existing.ResolvedAt = incoming.ResolvedAt
	existing.ResolvedByID = incoming.ResolvedByID
	existing.UpdatedAt = s.now()
	s.data.escalations[escalation.ID] = existing
	*escalation = *existing.Clone()
	return nil
}

func (r escalationRepo) GetByID(ctx context.Context, id int64) (*domain.IssueEscalation, error) {
	s := r.s
	defer s.acquire(ctx)()
	escalation, ok := s.data.escalations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return escalation.Clone(), nil
}

func (r escalationRepo) GetForUpdate(ctx context.Context, id int64) (*domain.IssueEscalation, error) {
	return r.GetByID(ctx, id)
}

func (r escalationRepo) ListByIssue(ctx context.Context, issueID int64) ([]domain.IssueEscalation, error) {
	s := r.s
	defer s.acquire(ctx)()
	var result []domain.IssueEscalation
	for _, e := range s.data.escalations {
		if e.IssueID == issueID {
			result = append(result, *e.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

func (r escalationRepo) CountByIssue(ctx context.Context, issueID int64) (int64, error) {
	s := r.s
	defer s.acquire(ctx)()
	var n int64
	for _, e := range s.data.escalations {
		if e.IssueID == issueID {
			n++
		}
	}
	return n, nil
}

type sequenceRepo struct{ s *Store }

func (r sequenceRepo) Next(ctx context.Context, prefix string) (int64, bool, error) {
	s := r.s
	defer s.acquire(ctx)()
	if err := s.failure("sequences.next"); err != nil {
		return 0, false, err
	}
	value, ok := s.data.sequences[prefix]
	if !ok {
		return 0, false, nil
	}
	value++
	s.data.sequences[prefix] = value
	return value, true, nil
}

func (r sequenceRepo) Init(ctx context.Context, prefix string, seed int64) (int64, error) {
	s := r.s
	defer s.acquire(ctx)()
	value := seed + 1
	if current, ok := s.data.sequences[prefix]; ok && current+1 > value {
		value = current + 1
	}
	s.data.sequences[prefix] = value
	return value, nil
}

type userDirectory struct{ s *Store }

func (d userDirectory) Exists(ctx context.Context, id int64) (bool, error) {
	s := d.s
	defer s.acquire(ctx)()
	if err := s.failure("users.exists"); err != nil {
		return false, err
	}
	_, ok := s.users[id]
	return ok || (s.openRefs && id > 0), nil
}

func (d userDirectory) Names(ctx context.Context, ids []int64) (map[int64]string, error) {
	s := d.s
	defer s.acquire(ctx)()
	if err := s.failure("users.names"); err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			names[id] = u.FullName
		}
	}
	return names, nil
}

type propertyDirectory struct{ s *Store }

func (d propertyDirectory) Exists(ctx context.Context, id int64) (bool, error) {
	s := d.s
	defer s.acquire(ctx)()
	_, ok := s.properties[id]
	return ok || (s.openRefs && id > 0), nil
}

func (d propertyDirectory) Names(ctx context.Context, ids []int64) (map[int64]string, error) {
	s := d.s
	defer s.acquire(ctx)()
	names := make(map[int64]string, len(ids))
	for _, id := range ids {
		if p, ok := s.properties[id]; ok {
			names[id] = p.Name
		}
	}
	return names, nil
}
