package domain

import (
	"database/sql"

	"gorm.io/gorm"
)

// Transactor runs fc inside a database transaction. *gorm.DB satisfies it.
type Transactor interface {
	Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error
}

var _ Transactor = (*gorm.DB)(nil)
