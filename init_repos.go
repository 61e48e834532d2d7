// Repository katmanı başlatma.
//
// initRepositories, tüm repository implementasyonlarını oluşturur.
// Her repository aynı *sql.DB'yi alır ve interface döner.

package main

import (
	"database/sql"

	"github.com/akinalp/parley/repository"
)

// Repositories, tüm repository instance'larını tutan container struct.
type Repositories struct {
	Message      repository.MessageRepository
	Membership   repository.MembershipRepository
	Conversation repository.ConversationRepository
}

// initRepositories, veritabanı bağlantısından tüm repository'leri oluşturur.
func initRepositories(conn *sql.DB) *Repositories {
	return &Repositories{
		Message:      repository.NewSQLiteMessageRepo(conn),
		Membership:   repository.NewSQLiteMembershipRepo(conn),
		Conversation: repository.NewSQLiteConversationRepo(conn),
	}
}
