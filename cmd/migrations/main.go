package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	_ "github.com/lib/pq"
	"github.com/vncsmyrnk/awardpoll/internal/config"
	"github.com/vncsmyrnk/awardpoll/internal/logger"
)

// Usage:
//
//	migrations up             apply every *.up.sql in order
//	migrations down           apply every *.down.sql in reverse order
//	migrations <name>...      apply the files matching each name, e.g. init.up
func main() {
	log := logger.New(os.Getenv("LOG_LEVEL"), false)

	if len(os.Args) < 2 {
		log.Fatal().Msg("a migration name is required.")
	}

	if !config.LoadDotEnv() {
		log.Info().Msg("no .env file found")
	}

	db, err := sql.Open("postgres", config.LoadPostgres().DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	basePath := filepath.Join(".", "internal", "adapters", "repository", "postgres", "migrations")
	files, err := migrationFiles(basePath, os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve migrations")
	}

	for _, f := range files {
		fileContent, err := os.ReadFile(filepath.Join(basePath, f))
		if err != nil {
			log.Fatal().Err(err).Str("file", f).Msg("failed to read migration")
		}
		if _, err := db.Exec(string(fileContent)); err != nil {
			log.Fatal().Err(err).Str("file", f).Msg("failed to execute SQL file")
		}
		log.Info().Str("file", f).Msg("migration file executed successfully")
	}
}

func migrationFiles(basePath string, names []string) ([]string, error) {
	entries, err := os.ReadDir(basePath)
	if err != nil {
		return nil, err
	}
	var all []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			all = append(all, e.Name())
		}
	}
	sort.Strings(all)

	if len(names) == 1 && (names[0] == "up" || names[0] == "down") {
		return byDirection(all, names[0]), nil
	}

	var files []string
	for _, name := range names {
		f, err := migrationFilePath(all, name)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func byDirection(all []string, direction string) []string {
	suffix := "." + direction + ".sql"
	var files []string
	for _, f := range all {
		if strings.HasSuffix(f, suffix) {
			files = append(files, f)
		}
	}
	if direction == "down" {
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
	}
	return files
}

func migrationFilePath(files []string, migrationName string) (string, error) {
	regex := regexp.MustCompile(fmt.Sprintf(`^.*%s\.sql$`, regexp.QuoteMeta(migrationName)))
	for _, f := range files {
		if regex.MatchString(f) {
			return f, nil
		}
	}
	return "", fmt.Errorf("migration file %q not found", migrationName)
}
