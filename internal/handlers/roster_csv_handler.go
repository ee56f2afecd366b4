package handlers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/tabungin/backend/internal/config"
	"github.com/tabungin/backend/internal/services"
)

// RosterCSVHandler moves the student roster in and out as CSV. Import rows
// are "nis,name,class" with an optional header line.
type RosterCSVHandler struct {
	students *services.StudentService
	config   *config.SchoolConfig
}

func NewRosterCSVHandler(students *services.StudentService, cfg *config.SchoolConfig) *RosterCSVHandler {
	return &RosterCSVHandler{students: students, config: cfg}
}

// ExportStudents streams the roster as CSV
// @Summary Export roster as CSV
// @Description Download the full student roster as a CSV file
// @Tags students
// @Produce text/csv
// @Success 200 {string} string "CSV data"
// @Failure 500 {object} services.ErrorResponse
// @Router /students/export [get]
func (h *RosterCSVHandler) ExportStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.students.FetchAll()
	if err != nil {
		log.Printf("[ROSTER_CSV] Failed to fetch roster: %v", err)
		services.SendErrorResponse(w, "Failed to fetch students", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="siswa-%s.csv"`, time.Now().Format("2006-01-02")))

	cw := csv.NewWriter(w)
	cw.Write([]string{"nis", "name", "class"})
	for _, st := range students {
		cw.Write([]string{st.NIS, st.Name, st.ClassName})
	}
	cw.Flush()
}

// ImportStudents loads roster rows from an uploaded CSV
// @Summary Import roster from CSV
// @Description Bulk-create students from CSV rows of nis,name,class; existing NIS rows are skipped
// @Tags students
// @Accept text/csv
// @Produce json
// @Success 200 {object} object{imported=int,skipped=int,failed=[]string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /students/import [post]
func (h *RosterCSVHandler) ImportStudents(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)

	reader := csv.NewReader(r.Body)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	imported, skipped := 0, 0
	failed := []string{}
	line := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			services.SendErrorResponse(w, fmt.Sprintf("Malformed CSV at line %d", line), http.StatusBadRequest, nil)
			return
		}

		// Tolerate a header row
		if line == 1 && strings.EqualFold(record[0], "nis") {
			continue
		}

		if imported+skipped >= h.config.CSVImportLimit {
			services.SendErrorResponse(w, fmt.Sprintf("Import exceeds limit of %d rows", h.config.CSVImportLimit), http.StatusBadRequest, nil)
			return
		}

		nis := strings.TrimSpace(record[0])
		name := strings.TrimSpace(record[1])
		class := strings.TrimSpace(record[2])
		if nis == "" || name == "" || class == "" {
			failed = append(failed, fmt.Sprintf("line %d: empty field", line))
			continue
		}

		inserted, err := h.students.Insert(nis, name, class)
		if err != nil {
			log.Printf("[ROSTER_CSV] Failed to insert %s: %v", nis, err)
			failed = append(failed, fmt.Sprintf("line %d: %s", line, nis))
			continue
		}
		if inserted {
			imported++
		} else {
			skipped++
		}
	}

	log.Printf("[ROSTER_CSV] Import complete: %d imported, %d skipped, %d failed", imported, skipped, len(failed))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"imported": imported,
		"skipped":  skipped,
		"failed":   failed,
	})
}
