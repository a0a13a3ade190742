package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/novel-moderation/internal/domain"
)

// Saver Описываем, что нам нужно от сервиса
type Saver interface {
	SaveBook(ctx context.Context, b *domain.Book) (Submission, error)
	SaveChapter(ctx context.Context, c *domain.Chapter) (Submission, error)
}

type Handler struct {
	service Saver
}

func NewHandler(s Saver) *Handler {
	return &Handler{service: s}
}

// Routes - минимальный фронт каталога: сохранить и отправить на модерацию.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/books", h.CreateBook)
		r.Put("/books/{id}", h.UpdateBook)
		r.Post("/books/{id}/chapters", h.CreateChapter)
		r.Put("/chapters/{id}", h.UpdateChapter)
	})
	return r
}

type BookRequest struct {
	AuthorID    int64  `json:"authorId"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type ChapterRequest struct {
	Sequence int    `json:"sequence"`
	Title    string `json:"title"`
	Content  string `json:"content"`
}

func (h *Handler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.saveBook(w, r, &domain.Book{AuthorID: req.AuthorID, Title: req.Title, Description: req.Description})
}

func (h *Handler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.saveBook(w, r, &domain.Book{ID: id, AuthorID: req.AuthorID, Title: req.Title, Description: req.Description})
}

func (h *Handler) saveBook(w http.ResponseWriter, r *http.Request, b *domain.Book) {
	sub, err := h.service.SaveBook(r.Context(), b)
	if err != nil {
		writeError(w, err)
		return
	}
	accepted(w, sub)
}

func (h *Handler) CreateChapter(w http.ResponseWriter, r *http.Request) {
	bookID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ChapterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.saveChapter(w, r, &domain.Chapter{BookID: bookID, Sequence: req.Sequence, Title: req.Title, Content: req.Content})
}

func (h *Handler) UpdateChapter(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ChapterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.saveChapter(w, r, &domain.Chapter{ID: id, Sequence: req.Sequence, Title: req.Title, Content: req.Content})
}

func (h *Handler) saveChapter(w http.ResponseWriter, r *http.Request, c *domain.Chapter) {
	sub, err := h.service.SaveChapter(r.Context(), c)
	if err != nil {
		writeError(w, err)
		return
	}
	accepted(w, sub)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// accepted - ответ сразу после публикации, результат модерации придет асинхронно.
func accepted(w http.ResponseWriter, sub Submission) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(sub)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
