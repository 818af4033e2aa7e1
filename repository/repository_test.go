package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestDuplicateKeyPredicates(t *testing.T) {
	idCollision := &mysql.MySQLError{
		Number:  1062,
		Message: "Duplicate entry '123456' for key 'users.PRIMARY'",
	}
	usernameCollision := &mysql.MySQLError{
		Number:  1062,
		Message: "Duplicate entry 'ada' for key 'users.username'",
	}

	tests := []struct {
		name        string
		err         error
		anyIndex    bool
		primaryOnly bool
	}{
		{"nil", nil, false, false},
		{"unrelated error", errors.New("connection refused"), false, false},
		{"primary key collision", idCollision, true, true},
		{"username collision", usernameCollision, true, false},
		{"wrapped primary key collision", fmt.Errorf("failed to execute CreateUser: %w", idCollision), true, true},
		{"wrapped username collision", fmt.Errorf("failed to execute CreateUser: %w", usernameCollision), true, false},
		{"legacy message format", errors.New("Duplicate entry '42' for key 'PRIMARY'"), true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDuplicateEntry(tt.err); got != tt.anyIndex {
				t.Errorf("IsDuplicateEntry = %v, want %v", got, tt.anyIndex)
			}
			if got := IsDuplicatePrimaryKey(tt.err); got != tt.primaryOnly {
				t.Errorf("IsDuplicatePrimaryKey = %v, want %v", got, tt.primaryOnly)
			}
		})
	}
}
