package main

import (
	"database/sql"
	"fmt"
	"log"
	"math/rand"
	"os"

	_ "modernc.org/sqlite"
)

// Seeds a demo feature store: a dense feature table with a sentinel value
// sprinkled in, and a sparse row/triple table pair. Build summaries over it
// with POST /datasets/build.
func main() {
	dbPath := os.Getenv("QSKETCH_DB_PATH")
	if dbPath == "" {
		dbPath = "qsketch.sqlite"
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	rng := rand.New(rand.NewSource(42))

	if err := seedDense(db, rng); err != nil {
		log.Fatalf("seed dense: %v", err)
	}
	if err := seedSparse(db, rng); err != nil {
		log.Fatalf("seed sparse: %v", err)
	}
	fmt.Println("Seed done.")
}

func seedDense(db *sql.DB, rng *rand.Rand) error {
	if _, err := db.Exec(`DROP TABLE IF EXISTS features`); err != nil {
		return fmt.Errorf("drop: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE features (
        age REAL,
        income REAL,
        score REAL
    )`); err != nil {
		return fmt.Errorf("create: %v", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare(`INSERT INTO features(age, income, score) VALUES (?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	n := 100000
	for i := 0; i < n; i++ {
		age := 18 + rng.Float64()*62
		// income heavy-tail
		income := 20000 + rng.ExpFloat64()*45000
		score := rng.NormFloat64()*15 + 600

		// -999 marks a missing measurement; pass it in the build request's
		// abnormal list so it never lands in a summary.
		if rng.Float64() < 0.02 {
			income = -999
		}
		if _, err := stmt.Exec(age, income, score); err != nil {
			return fmt.Errorf("insert: %v", err)
		}
		if i > 0 && i%10000 == 0 {
			fmt.Printf("inserted %d/%d feature rows\n", i, n)
		}
	}
	return tx.Commit()
}

func seedSparse(db *sql.DB, rng *rand.Rand) error {
	for _, q := range []string{
		`DROP TABLE IF EXISTS sparse_rows`,
		`DROP TABLE IF EXISTS sparse_values`,
		`CREATE TABLE sparse_rows (label INTEGER)`,
		`CREATE TABLE sparse_values (
            row_id INTEGER NOT NULL,
            col_index INTEGER NOT NULL,
            value REAL NOT NULL
        )`,
	} {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("%s: %v", q, err)
		}
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	rowStmt, err := tx.Prepare(`INSERT INTO sparse_rows(label) VALUES (?)`)
	if err != nil {
		return err
	}
	defer rowStmt.Close()
	valStmt, err := tx.Prepare(`INSERT INTO sparse_values(row_id, col_index, value) VALUES (?,?,?)`)
	if err != nil {
		return err
	}
	defer valStmt.Close()

	n := 20000
	cols := 16
	for i := 1; i <= n; i++ {
		if _, err := rowStmt.Exec(rng.Intn(2)); err != nil {
			return fmt.Errorf("insert row: %v", err)
		}
		// ~90% of cells stay implicit zeros
		for c := 0; c < cols; c++ {
			if rng.Float64() < 0.1 {
				if _, err := valStmt.Exec(i, c, rng.ExpFloat64()*10); err != nil {
					return fmt.Errorf("insert value: %v", err)
				}
			}
		}
	}
	return tx.Commit()
}
