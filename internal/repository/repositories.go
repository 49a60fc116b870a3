package repository

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups every storage contract the engine needs.
type Repositories struct {
	TxManager   TxManager
	Issues      IssueRepository
	Activities  ActivityRepository
	Escalations EscalationRepository
	Sequences   IssueCodeSequenceRepository
	Users       UserDirectory
	Properties  PropertyDirectory
}

// NewPostgresRepositories builds the Postgres implementations over pool.
func NewPostgresRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		TxManager:   NewTxManager(pool),
		Issues:      NewIssueRepository(pool),
		Activities:  NewActivityRepository(pool),
		Escalations: NewEscalationRepository(pool),
		Sequences:   NewIssueCodeSequenceRepository(pool),
		Users:       NewUserDirectory(pool),
		Properties:  NewPropertyDirectory(pool),
	}
}
