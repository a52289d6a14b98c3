package repository

import "guideboard/internal/dbx"

// Manager vends repositories bound to a DBTX, so the same code runs against
// the pool or inside a transaction.
type Manager interface {
	Users(db dbx.DBTX) UserRepository
	Profiles(db dbx.DBTX) ProfileRepository
	Jobs(db dbx.DBTX) JobRepository
	Contacts(db dbx.DBTX) ContactRepository
}

type PostgresManager struct{}

func NewPostgresManager() *PostgresManager {
	return &PostgresManager{}
}

func (PostgresManager) Users(db dbx.DBTX) UserRepository { return NewPgUserRepository(db) }
func (PostgresManager) Profiles(db dbx.DBTX) ProfileRepository { return NewPgProfileRepository(db) }
func (PostgresManager) Jobs(db dbx.DBTX) JobRepository { return NewPgJobRepository(db) }
func (PostgresManager) Contacts(db dbx.DBTX) ContactRepository { return NewPgContactRepository(db) }
