package database

// Schema and query code are generated, never edited by hand:
//
//	go generate ./internal/database
//
// The first step rebuilds sqlc/schema.sql from the migrations; the second
// regenerates the sqlc package from sqlc/queries.sql.

//go:generate sh -c "cd ../.. && go run internal/database/tools/generate_schema.go"
//go:generate sh -c "cd ../.. && sqlc generate -f internal/database/sqlc/sqlc.yaml"
