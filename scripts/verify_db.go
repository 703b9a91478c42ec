package main

import (
	"fmt"
	"log"

	"github.com/glebarez/sqlite"
	"github.com/wwwzy/FinSight/internal/storage"
	"gorm.io/gorm"
)

func main() {
	// Connect to the database
	db, err := gorm.Open(sqlite.Open("finsight.db"), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	fmt.Println("--- Verifying FinSight Database ---")

	// Verify ToolAuditRecords
	var auditCount int64
	// We need to verify if the table exists first to avoid panic if migration didn't run
	if !db.Migrator().HasTable(&storage.ToolAuditRecord{}) {
		fmt.Println("Table 'tool_audit_records' does not exist yet.")
	} else {
		db.Model(&storage.ToolAuditRecord{}).Count(&auditCount)
		fmt.Printf("Total Tool Audit Records: %d\n", auditCount)

		if auditCount > 0 {
			var records []storage.ToolAuditRecord
			db.Order("started_at desc").Limit(5).Find(&records)
			fmt.Println("Latest 5 Tool Calls (Local Time):")
			for _, r := range records {
				fmt.Printf("  [%s] %s status=%s kind=%s\n",
					r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.ToolName, r.Status, r.ErrorKind)
			}
		}
	}

	fmt.Println("\n------------------------------------")

	// Verify RunRecords
	var runCount int64
	if !db.Migrator().HasTable(&storage.RunRecord{}) {
		fmt.Println("Table 'run_records' does not exist yet.")
	} else {
		db.Model(&storage.RunRecord{}).Count(&runCount)
		fmt.Printf("Total Run Records: %d\n", runCount)

		if runCount > 0 {
			var runs []storage.RunRecord
			db.Order("created_at desc").Limit(5).Find(&runs)
			fmt.Println("Latest 5 Runs (Local Time):")
			for _, r := range runs {
				q := r.Question
				if len(q) > 50 {
					q = q[:47] + "..."
				}
				fmt.Printf("  [%s] degraded=%v iters=%d %s\n",
					r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Degraded, r.Iterations, q)
			}
		}
	}
}
