package services

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func newStudentRouter(s *StudentService) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/students", s.ListStudents)
	r.Post("/students", s.CreateStudent)
	r.Get("/students/{nis}", s.GetStudent)
	r.Put("/students/{nis}", s.UpdateStudent)
	r.Delete("/students/{nis}", s.DeleteStudent)
	r.Put("/students/{nis}/pin", s.SetPIN)
	return r
}

func rosterRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "nis", "name", "class_name", "created_at", "updated_at"}).
		AddRow(1, "24001", "Balkhi", "9a", now, now).
		AddRow(2, "24002", "Jane Smith", "9b", now, now)
}

func TestStudentService_ListStudents(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewStudentService(db, nil)
	router := newStudentRouter(service)
	now := time.Now()

	listQuery := `SELECT id, nis, name, class_name, created_at, updated_at\s+FROM students\s+ORDER BY name ASC`

	t.Run("class filter", func(t *testing.T) {
		mock.ExpectQuery(listQuery).WillReturnRows(rosterRows(now))

		req := httptest.NewRequest(http.MethodGet, "/students?class=9a", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Students []struct {
				Name string `json:"name"`
			} `json:"students"`
			Count int `json:"count"`
		}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
		assert.Equal(t, "Balkhi", resp.Students[0].Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("search with class sentinel", func(t *testing.T) {
		mock.ExpectQuery(listQuery).WillReturnRows(rosterRows(now))

		req := httptest.NewRequest(http.MethodGet, "/students?class=all&search=smith", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Students []struct {
				Name string `json:"name"`
			} `json:"students"`
			Count int `json:"count"`
		}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
		assert.Equal(t, "Jane Smith", resp.Students[0].Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStudentService_CreateStudent(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewStudentService(db, nil)
	router := newStudentRouter(service)

	t.Run("successful create", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery(`INSERT INTO students \(nis, name, class_name, created_at, updated_at\)`).
			WithArgs("24003", "Ahmad Fauzi", "9a").
			WillReturnRows(sqlmock.NewRows([]string{"id", "nis", "name", "class_name", "created_at", "updated_at"}).
				AddRow(3, "24003", "Ahmad Fauzi", "9a", now, now))

		body, _ := json.Marshal(map[string]string{"nis": "24003", "name": "Ahmad Fauzi", "class": "9a"})
		req := httptest.NewRequest(http.MethodPost, "/students", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("validation failure", func(t *testing.T) {
		body, _ := json.Marshal(map[string]string{"nis": "24004", "name": "X", "class": "9a"})
		req := httptest.NewRequest(http.MethodPost, "/students", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Validation failed")
	})
}

func TestStudentService_SetPIN(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewStudentService(db, nil)
	router := newStudentRouter(service)

	t.Run("stores hashed PIN", func(t *testing.T) {
		mock.ExpectExec(`UPDATE students SET pin_hash = \$1, updated_at = NOW\(\) WHERE nis = \$2`).
			WithArgs(sqlmock.AnyArg(), "24001").
			WillReturnResult(sqlmock.NewResult(0, 1))

		body, _ := json.Marshal(map[string]string{"pin": "123456"})
		req := httptest.NewRequest(http.MethodPut, "/students/24001/pin", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects non-numeric PIN", func(t *testing.T) {
		body, _ := json.Marshal(map[string]string{"pin": "abc123"})
		req := httptest.NewRequest(http.MethodPut, "/students/24001/pin", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown student", func(t *testing.T) {
		mock.ExpectExec(`UPDATE students SET pin_hash = \$1, updated_at = NOW\(\) WHERE nis = \$2`).
			WithArgs(sqlmock.AnyArg(), "99999").
			WillReturnResult(sqlmock.NewResult(0, 0))

		body, _ := json.Marshal(map[string]string{"pin": "123456"})
		req := httptest.NewRequest(http.MethodPut, "/students/99999/pin", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStudentService_DeleteStudent(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewStudentService(db, nil)
	router := newStudentRouter(service)

	t.Run("successful delete", func(t *testing.T) {
		mock.ExpectExec(`DELETE FROM students WHERE nis = \$1`).
			WithArgs("24001").
			WillReturnResult(sqlmock.NewResult(0, 1))

		req := httptest.NewRequest(http.MethodDelete, "/students/24001", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown student", func(t *testing.T) {
		mock.ExpectExec(`DELETE FROM students WHERE nis = \$1`).
			WithArgs("99999").
			WillReturnResult(sqlmock.NewResult(0, 0))

		req := httptest.NewRequest(http.MethodDelete, "/students/99999", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
