package main

import (
	"log"
	"os"

	"ai-genbot-gateway/internal/model"
	"ai-genbot-gateway/pkg/database"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		color.Red("Error: DB_CONNECTION_STRING is not set")
		os.Exit(1)
	}

	db, err := database.NewGormDBFromDSN(dsn, true)
	if err != nil {
		color.Red("Error: Failed to connect to database: %v", err)
		os.Exit(1)
	}

	models := model.All()
	color.Cyan("Step 1: Running AutoMigrate for %d tables...", len(models))
	if err := db.AutoMigrate(models...); err != nil {
		color.Red("Error: AutoMigrate failed: %v", err)
		os.Exit(1)
	}

	if db.Dialector.Name() == "postgres" {
		color.Cyan("Step 2: Creating views...")

		postMigrationSQL := []string{
			// View: generations per kind over the rolling quota window
			`CREATE OR REPLACE VIEW generations_last_24h AS
			 SELECT kind, COUNT(*) AS total, COUNT(DISTINCT user_id) AS users
			 FROM user_generations
			 WHERE created_at > now() - interval '24 hours'
			 GROUP BY kind;`,
		}

		for _, sql := range postMigrationSQL {
			if err := db.Exec(sql).Error; err != nil {
				color.Yellow("Warn: Failed to execute post-migration SQL: %v", err)
			}
		}
	}

	color.Green("✅ Success: Database migration completed.")
}
