package repository

import "embed"

// Migrations holds the schema in sql-migrate format ("-- +migrate Up" / "-- +migrate Down")
//
//go:embed migrations/*.sql
var Migrations embed.FS
