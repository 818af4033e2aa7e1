package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// IsDuplicateEntry reports whether err is a MySQL duplicate-key rejection on
// any unique index. Used where losing a unique-column race counts as success,
// such as artist profile creation.
func IsDuplicateEntry(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate entry") || strings.Contains(msg, "unique constraint")
}

// IsDuplicatePrimaryKey reports whether err is a duplicate-key rejection on
// the table's primary key specifically. The identifier allocator retries only
// on this: a username or email collision on the same insert must surface as a
// conflict instead of burning through fresh candidate ids.
func IsDuplicatePrimaryKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		// Error 1062 names the violated key: 'users.PRIMARY' on MySQL 8,
		// 'PRIMARY' on older servers.
		return mysqlErr.Number == 1062 && strings.Contains(mysqlErr.Message, "PRIMARY")
	}
	return IsDuplicateEntry(err) && strings.Contains(strings.ToUpper(err.Error()), "PRIMARY")
}
