package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/interviewmate/stt-relay/internal/assist"
	"github.com/interviewmate/stt-relay/internal/transcript"
)

const (
	maxBodyBytes   = 1 << 20
	maxResumeBytes = 5 << 20
)

// API serves the REST endpoints that sit next to the transcription socket.
// chat and companies may be nil; their routes then answer 503.
type API struct {
	chat      assist.Chat
	companies *assist.CompanyStore
	extractor assist.TextExtractor
	logger    zerolog.Logger
}

// New creates the API.
func New(chat assist.Chat, companies *assist.CompanyStore, extractor assist.TextExtractor, logger zerolog.Logger) *API {
	if extractor == nil {
		extractor = assist.PlainTextExtractor{MaxBytes: maxResumeBytes}
	}
	return &API{chat: chat, companies: companies, extractor: extractor, logger: logger}
}

// Register adds the API routes to router.
func (a *API) Register(router *mux.Router) {
	router.HandleFunc("/api/transcript/process", a.handleProcessTranscript).Methods("POST")
	router.HandleFunc("/api/transcript/merge", a.handleMergeTranscript).Methods("POST")
	router.HandleFunc("/api/chat/answer", a.handleAnswer).Methods("POST")
	router.HandleFunc("/api/resume/extract", a.handleExtractResume).Methods("POST")
	router.HandleFunc("/api/companies", a.handleListCompanies).Methods("GET")
	router.HandleFunc("/api/companies/{companyID}", a.handleGetCompany).Methods("GET")
	router.HandleFunc("/api/companies/{companyID}/questions", a.handleCompanyQuestions).Methods("GET")
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Error: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

type processRequest struct {
	RawTranscript string `json:"rawTranscript"`
	Speaker       string `json:"speaker"`
}

func (a *API) handleProcessTranscript(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.RawTranscript) == "" {
		writeError(w, http.StatusBadRequest, "Transcript text is required")
		return
	}
	speaker := req.Speaker
	if speaker == "" {
		speaker = "Unknown"
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: transcript.Utterance{
		ID:        uuid.New().String(),
		Text:      transcript.CleanText(req.RawTranscript),
		Speaker:   speaker,
		Timestamp: time.Now().UTC(),
		IsFinal:   true,
	}})
}

type mergeRequest struct {
	Chunks []transcript.Utterance `json:"chunks"`
}

func (a *API) handleMergeTranscript(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Chunks == nil {
		writeError(w, http.StatusBadRequest, "Chunks array is required")
		return
	}
	merged := transcript.MergeSentences(req.Chunks)
	if merged == nil {
		merged = []transcript.Utterance{}
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: merged})
}

type answerRequest struct {
	Question            string        `json:"question"`
	ResumeContext       string        `json:"resumeContext"`
	ConversationHistory []assist.Turn `json:"conversationHistory"`
	Language            string        `json:"language"`
	Stream              bool          `json:"stream"`
}

type answerResponse struct {
	Answer    string `json:"answer"`
	Timestamp string `json:"timestamp"`
}

func (a *API) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if a.chat == nil {
		writeError(w, http.StatusServiceUnavailable, assist.ErrChatNotConfigured.Error())
		return
	}
	var req answerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "Question is required")
		return
	}

	ar := assist.AnswerRequest{
		Question:      req.Question,
		ResumeContext: req.ResumeContext,
		Language:      req.Language,
		History:       req.ConversationHistory,
	}
	if req.Stream || r.URL.Query().Get("stream") == "true" {
		a.streamAnswer(w, r, ar)
		return
	}

	answer, err := a.chat.GenerateAnswer(r.Context(), ar)
	if err != nil {
		a.logger.Error().Err(err).Msg("Chat answer failed")
		writeError(w, http.StatusBadGateway, "Failed to generate answer")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: answerResponse{
		Answer:    answer,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}})
}

// streamAnswer writes server-sent events: one {"chunk": ...} per piece and a
// final [DONE]. Errors after the first byte are reported in-band.
func (a *API) streamAnswer(w http.ResponseWriter, r *http.Request, req assist.AnswerRequest) {
	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent := func(payload string) {
		fmt.Fprintf(w, "data: %s\n\n", payload)
		if flusher != nil {
			flusher.Flush()
		}
	}

	err := a.chat.StreamAnswer(r.Context(), req, func(chunk string) {
		b, _ := json.Marshal(map[string]string{"chunk": chunk})
		writeEvent(string(b))
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("Chat stream failed")
		b, _ := json.Marshal(map[string]string{"error": "Failed to generate answer"})
		writeEvent(string(b))
	}
	writeEvent(assist.StreamDone)
}

type extractResponse struct {
	Text       string `json:"text"`
	Characters int    `json:"characters"`
}

func (a *API) handleExtractResume(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxResumeBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "Resume is too large")
		return
	}

	text, err := a.extractor.ExtractText(data, r.Header.Get("Content-Type"))
	var unsupported *assist.UnsupportedFormatError
	switch {
	case errors.As(err, &unsupported):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: extractResponse{Text: text, Characters: len([]rune(text))}})
}

func (a *API) companyStore(w http.ResponseWriter) bool {
	if a.companies == nil {
		writeError(w, http.StatusServiceUnavailable, "Company data not configured. Set COMPANY_DATA_FILE.")
		return false
	}
	return true
}

func (a *API) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	if !a.companyStore(w) {
		return
	}
	companies := a.companies.List()
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]any{
		"companies": companies,
		"count":     len(companies),
	}})
}

func (a *API) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	if !a.companyStore(w) {
		return
	}
	company, err := a.companies.GetByID(mux.Vars(r)["companyID"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: company})
}

func (a *API) handleCompanyQuestions(w http.ResponseWriter, r *http.Request) {
	if !a.companyStore(w) {
		return
	}
	questions, err := a.companies.Questions(mux.Vars(r)["companyID"], r.URL.Query().Get("type"))
	switch {
	case errors.Is(err, assist.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: questions})
}
