package models

import (
	"log"

	"bitbucket.org/mmdatafocus/petroeval_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&EvalCase{},
		&Calculation{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
