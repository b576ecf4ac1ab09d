// Imports a long-format target allocation CSV (date,stock_code,weight) into
// the position store, normalizing codes and weights on the way in.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/minqt/weight-sync/internal/logger"
	"github.com/minqt/weight-sync/internal/positions"
	"github.com/minqt/weight-sync/internal/storage"
)

func main() {
	dbPath := flag.String("db", "data/weight-sync.db", "path to SQLite database")
	filePath := flag.String("file", "", "path to long-format CSV (date,stock_code,weight)")
	flag.Parse()

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: importpos -file positions.csv [-db data/weight-sync.db]")
		os.Exit(1)
	}

	log := logger.New("info")

	f, err := os.Open(*filePath)
	if err != nil {
		log.Error("open position file", "error", err)
		os.Exit(1)
	}
	defer f.Close()

	rows, err := positions.ParseCSV(f)
	if err != nil {
		log.Error("parse position file", "error", err)
		os.Exit(1)
	}
	rows = positions.Normalize(rows, log)
	if len(rows) == 0 {
		log.Error("no usable rows after normalization")
		os.Exit(1)
	}

	db, err := storage.NewDatabase(*dbPath)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	repo := storage.NewRepository(db)

	byDate := make(map[string][]storage.TargetPosition)
	for _, row := range rows {
		byDate[row.Date] = append(byDate[row.Date], storage.TargetPosition{
			Date:      row.Date,
			StockCode: row.StockCode,
			Weight:    row.Weight,
		})
	}

	for date, dateRows := range byDate {
		if err := repo.ReplaceTargetPositions(date, dateRows); err != nil {
			log.Error("store target positions", "date", date, "error", err)
			os.Exit(1)
		}
		log.Info("target positions imported", "date", date, "stocks", len(dateRows))
	}
}
