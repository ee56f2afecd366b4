package services

import (
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/lib/pq"
	"github.com/spf13/viper"
	"github.com/tabungin/backend/internal/ledger"
	"github.com/tabungin/backend/internal/models"
	"golang.org/x/crypto/argon2"
)

type StudentService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *ValidationHelper
}

// StudentRequest is the payload for roster create and update operations.
type StudentRequest struct {
	NIS       string `json:"nis" validate:"required,max=20,alphanum"`
	Name      string `json:"name" validate:"required,min=2,max=100"`
	ClassName string `json:"class" validate:"required,max=20"`
}

// PINRequest carries a new student PIN. The PIN is stored hashed; login
// flows live outside this service.
type PINRequest struct {
	PIN string `json:"pin" validate:"required,len=6,numeric"`
}

func NewStudentService(db *sql.DB, redisClient *redis.Client) *StudentService {
	return &StudentService{
		db:        db,
		redis:     redisClient,
		validator: NewValidationHelper(),
	}
}

// ListStudents returns the roster, optionally narrowed by class and search
// @Summary List students
// @Description List the roster with optional class filter and name/NIS search
// @Tags students
// @Produce json
// @Param class query string false "Class name, or 'all' for no filter"
// @Param search query string false "Case-insensitive substring match on name or NIS"
// @Success 200 {object} object{students=[]models.Student,count=int}
// @Failure 500 {object} ErrorResponse
// @Router /students [get]
func (s *StudentService) ListStudents(w http.ResponseWriter, r *http.Request) {
	class := strings.TrimSpace(r.URL.Query().Get("class"))
	search := r.URL.Query().Get("search")

	students, err := s.fetchStudents()
	if err != nil {
		log.Printf("[STUDENT] Failed to fetch roster: %v", err)
		SendErrorResponse(w, "Failed to fetch students", http.StatusInternalServerError, nil)
		return
	}

	filtered := ledger.FilterStudents(students, class, search)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"students": filtered,
		"count":    len(filtered),
	})
}

// CreateStudent adds a student to the roster
// @Summary Create student
// @Description Register a new student savings account
// @Tags students
// @Accept json
// @Produce json
// @Param student body StudentRequest true "Student data"
// @Success 201 {object} models.Student
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /students [post]
func (s *StudentService) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req StudentRequest
	if !s.validator.DecodeAndValidate(w, r, &req) {
		return
	}

	var student models.Student
	err := s.db.QueryRow(`
        INSERT INTO students (nis, name, class_name, created_at, updated_at)
        VALUES ($1, $2, $3, NOW(), NOW())
        RETURNING id, nis, name, class_name, created_at, updated_at
    `, req.NIS, req.Name, req.ClassName).Scan(
		&student.ID, &student.NIS, &student.Name, &student.ClassName,
		&student.CreatedAt, &student.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			SendErrorResponse(w, "NIS already registered", http.StatusConflict, nil)
			return
		}
		log.Printf("[STUDENT] Failed to create student %s: %v", req.NIS, err)
		SendErrorResponse(w, "Failed to create student", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[STUDENT] Created student %s (%s, class %s)", student.NIS, student.Name, student.ClassName)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(student)
}

// GetStudent returns one roster entry
// @Summary Get student
// @Description Get a single student by NIS
// @Tags students
// @Produce json
// @Param nis path string true "Student NIS"
// @Success 200 {object} models.Student
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /students/{nis} [get]
func (s *StudentService) GetStudent(w http.ResponseWriter, r *http.Request) {
	nis := chi.URLParam(r, "nis")

	var student models.Student
	err := s.db.QueryRow(`
        SELECT id, nis, name, class_name, created_at, updated_at
        FROM students WHERE nis = $1
    `, nis).Scan(
		&student.ID, &student.NIS, &student.Name, &student.ClassName,
		&student.CreatedAt, &student.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Student not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[STUDENT] Failed to fetch student %s: %v", nis, err)
			SendErrorResponse(w, "Failed to fetch student", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(student)
}

// UpdateStudent changes a student's name or class
// @Summary Update student
// @Description Update a student's name and class; NIS is immutable
// @Tags students
// @Accept json
// @Produce json
// @Param nis path string true "Student NIS"
// @Param student body StudentRequest true "Student data"
// @Success 200 {object} models.Student
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /students/{nis} [put]
func (s *StudentService) UpdateStudent(w http.ResponseWriter, r *http.Request) {
	nis := chi.URLParam(r, "nis")

	var req StudentRequest
	if !s.validator.DecodeAndValidate(w, r, &req) {
		return
	}

	if req.NIS != nis {
		SendErrorResponse(w, "NIS cannot be changed", http.StatusBadRequest, nil)
		return
	}

	var student models.Student
	err := s.db.QueryRow(`
        UPDATE students SET name = $1, class_name = $2, updated_at = NOW()
        WHERE nis = $3
        RETURNING id, nis, name, class_name, created_at, updated_at
    `, req.Name, req.ClassName, nis).Scan(
		&student.ID, &student.NIS, &student.Name, &student.ClassName,
		&student.CreatedAt, &student.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Student not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[STUDENT] Failed to update student %s: %v", nis, err)
			SendErrorResponse(w, "Failed to update student", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(student)
}

// DeleteStudent removes a student and their transaction history
// @Summary Delete student
// @Description Hard-delete a student; their transactions are removed with them
// @Tags students
// @Produce json
// @Param nis path string true "Student NIS"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /students/{nis} [delete]
func (s *StudentService) DeleteStudent(w http.ResponseWriter, r *http.Request) {
	nis := chi.URLParam(r, "nis")

	result, err := s.db.Exec(`DELETE FROM students WHERE nis = $1`, nis)
	if err != nil {
		log.Printf("[STUDENT] Failed to delete student %s: %v", nis, err)
		SendErrorResponse(w, "Failed to delete student", http.StatusInternalServerError, nil)
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		SendErrorResponse(w, "Student not found", http.StatusNotFound, nil)
		return
	}

	if s.redis != nil {
		s.redis.Del(r.Context(), fmt.Sprintf("summary:%s", nis))
	}

	log.Printf("[STUDENT] Deleted student %s", nis)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Student deleted"})
}

// SetPIN stores a new hashed PIN for a student
// @Summary Set student PIN
// @Description Replace the student's PIN; the PIN is stored as an argon2id hash
// @Tags students
// @Accept json
// @Produce json
// @Param nis path string true "Student NIS"
// @Param pin body PINRequest true "New PIN"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /students/{nis}/pin [put]
func (s *StudentService) SetPIN(w http.ResponseWriter, r *http.Request) {
	nis := chi.URLParam(r, "nis")

	var req PINRequest
	if !s.validator.DecodeAndValidate(w, r, &req) {
		return
	}

	hashed, err := hashPIN(req.PIN)
	if err != nil {
		log.Printf("[STUDENT] PIN hashing failed for %s: %v", nis, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	result, err := s.db.Exec(`UPDATE students SET pin_hash = $1, updated_at = NOW() WHERE nis = $2`, hashed, nis)
	if err != nil {
		log.Printf("[STUDENT] Failed to store PIN for %s: %v", nis, err)
		SendErrorResponse(w, "Failed to update PIN", http.StatusInternalServerError, nil)
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		SendErrorResponse(w, "Student not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[STUDENT] PIN updated for student %s", nis)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "PIN updated"})
}

// FetchAll returns the full roster in name order. Exposed for the CSV
// handlers.
func (s *StudentService) FetchAll() ([]models.Student, error) {
	return s.fetchStudents()
}

// Insert adds one roster entry and reports whether the NIS was new.
// Exposed for the CSV import handler.
func (s *StudentService) Insert(nis, name, class string) (bool, error) {
	result, err := s.db.Exec(`
        INSERT INTO students (nis, name, class_name, created_at, updated_at)
        VALUES ($1, $2, $3, NOW(), NOW())
        ON CONFLICT (nis) DO NOTHING
    `, nis, name, class)
	if err != nil {
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	return rowsAffected > 0, err
}

func (s *StudentService) fetchStudents() ([]models.Student, error) {
	rows, err := s.db.Query(`
        SELECT id, nis, name, class_name, created_at, updated_at
        FROM students
        ORDER BY name ASC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	students := []models.Student{}
	for rows.Next() {
		var st models.Student
		err := rows.Scan(&st.ID, &st.NIS, &st.Name, &st.ClassName, &st.CreatedAt, &st.UpdatedAt)
		if err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

func hashPIN(pin string) (string, error) {
	salt := make([]byte, argonParam("argon2.salt_length", 16))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(pin), salt,
		uint32(argonParam("argon2.time", 1)),
		uint32(argonParam("argon2.memory", 64*1024)),
		uint8(argonParam("argon2.threads", 4)),
		uint32(argonParam("argon2.key_length", 32)))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func argonParam(key string, defaultVal int) int {
	if val := viper.GetInt(key); val > 0 {
		return val
	}
	return defaultVal
}
