package cmd

import (
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with reference data and sample records for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		var deptID string
		err = db.Get(&deptID, "SELECT id FROM departments WHERE name = $1", "Engineering")
		if err != nil {
			deptID = uuid.NewString()
			if _, err := db.Exec(
				"INSERT INTO departments (id, name, created_at, updated_at) VALUES ($1, $2, now(), now())",
				deptID, "Engineering",
			); err != nil {
				log.Fatalf("failed to seed department: %v", err)
			}
			fmt.Println("Seeded department: Engineering")
		} else {
			fmt.Println("department Engineering already exists")
		}

		var svcID string
		err = db.Get(&svcID, "SELECT id FROM services WHERE name = $1", "Source Hosting")
		if err != nil {
			svcID = uuid.NewString()
			if _, err := db.Exec(
				"INSERT INTO services (id, name, created_at, updated_at) VALUES ($1, $2, now(), now())",
				svcID, "Source Hosting",
			); err != nil {
				log.Fatalf("failed to seed service: %v", err)
			}
			if _, err := db.Exec(
				"INSERT INTO service_admins (service_id, email, name) VALUES ($1, $2, $3)",
				svcID, "it-ops@example.com", "IT Operations",
			); err != nil {
				log.Fatalf("failed to seed service admin: %v", err)
			}
			fmt.Println("Seeded service: Source Hosting")
		} else {
			fmt.Println("service Source Hosting already exists")
		}

		var productID string
		err = db.Get(&productID, "SELECT id FROM products WHERE name = $1", "Git Repository Access")
		if err != nil {
			productID = uuid.NewString()
			if _, err := db.Exec(
				"INSERT INTO products (id, name, service_id, status_id, created_at, updated_at) VALUES ($1, $2, $3, 1, now(), now())",
				productID, "Git Repository Access", svcID,
			); err != nil {
				log.Fatalf("failed to seed product: %v", err)
			}
			if _, err := db.Exec(
				"INSERT INTO department_product_assignments (department_id, product_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
				deptID, productID,
			); err != nil {
				log.Fatalf("failed to assign product to department: %v", err)
			}
			fmt.Println("Seeded product: Git Repository Access")
		} else {
			fmt.Println("product Git Repository Access already exists")
		}

		fmt.Println("Seeding complete")
	},
}
