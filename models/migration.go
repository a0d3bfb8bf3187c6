package models

import (
	"github.com/mmdatafocus/salon_backend/config"
)

// settlementTables lists every table the engine owns, in creation order.
var settlementTables = []interface{}{
	&Invoice{}, &PaymentTransaction{},
	&CashRegister{}, &CashSession{}, &CashTransaction{},
	&IdempotencyKey{}, &PubSubMessageRecord{},
}

func MigrateTable() error {
	return config.GetDB().AutoMigrate(settlementTables...)
}
