// Package server exposes the engine over HTTP. It is a thin boundary: every
// decision lives in the engine; handlers only translate bodies and errors.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rezonia/einvoice-engine/internal/advisory"
	"github.com/rezonia/einvoice-engine/internal/codec"
	"github.com/rezonia/einvoice-engine/internal/engine"
	"github.com/rezonia/einvoice-engine/internal/model"
	"github.com/rezonia/einvoice-engine/internal/money"
	"github.com/rezonia/einvoice-engine/internal/profile"
	"github.com/rezonia/einvoice-engine/internal/rules"
	"github.com/rezonia/einvoice-engine/internal/tax"
)

// Config holds server configuration
type Config struct {
	Address         string
	APIKey          string
	LLMBaseURL      string
	LLMModel        string
	AdvisoryTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	Debug           bool
}

// Server represents the HTTP API server
type Server struct {
	config *Config
	router *gin.Engine
	engine *engine.Engine
}

// NewServer creates a new API server
func NewServer(config *Config) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if config.Debug {
		router.Use(gin.Logger())
	}

	var reviewer advisory.Reviewer = advisory.Noop{}
	if config.APIKey != "" {
		var clientOpts []advisory.ClientOption
		if config.LLMBaseURL != "" {
			clientOpts = append(clientOpts, advisory.WithBaseURL(config.LLMBaseURL))
		}
		client := advisory.NewClient(config.APIKey, clientOpts...)

		var reviewerOpts []advisory.ReviewerOption
		if config.LLMModel != "" {
			reviewerOpts = append(reviewerOpts, advisory.WithModel(config.LLMModel))
		}
		reviewer = advisory.NewReviewer(client, reviewerOpts...)
	}

	eng := engine.New(
		engine.WithReviewer(reviewer),
		engine.WithOptions(engine.Options{AdvisoryTimeout: config.AdvisoryTimeout}),
	)

	s := &Server{
		config: config,
		router: router,
		engine: eng,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/invoices/validate", s.handleValidate)
		v1.POST("/invoices/seal", s.handleSeal)
		v1.POST("/incoming/decode", s.handleDecode)
		v1.POST("/convert", s.handleConvert)
		v1.GET("/ledger", s.handleLedger)
		v1.GET("/ledger/verify", s.handleLedgerVerify)
		v1.GET("/profiles", s.handleProfiles)
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return srv.ListenAndServe()
}

// Handler returns the http.Handler for use with custom servers
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	ledgerStatus := "ok"
	if err := s.engine.VerifyLedger(); err != nil {
		ledgerStatus = "integrity failure"
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
		"components": gin.H{
			"ledger": ledgerStatus,
		},
	})
}

func (s *Server) handleProfiles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"profiles": profile.All()})
}

func (s *Server) handleValidate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Kind: "input"})
		return
	}

	p, err := profile.ByID(req.Profile)
	if err != nil {
		writeError(c, err)
		return
	}
	inv, err := req.Invoice.ToModel()
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := s.engine.Validate(c.Request.Context(), inv, p)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ValidationResponse{
		Valid:    result.Valid(),
		Profile:  p.ID,
		Errors:   result.Errors,
		Warnings: result.Warnings,
		Invoice:  inv,
	})
}

func (s *Server) handleSeal(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Kind: "input"})
		return
	}

	p, err := profile.ByID(req.Profile)
	if err != nil {
		writeError(c, err)
		return
	}
	inv, err := req.Invoice.ToModel()
	if err != nil {
		writeError(c, err)
		return
	}

	sealed, err := s.engine.Seal(c.Request.Context(), inv, p)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SealResponse{
		SealedDocument: sealed,
		Document:       string(sealed.Bytes),
	})
}

func (s *Server) handleDecode(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "empty request body", Kind: "input"})
		return
	}

	inv, p, err := s.engine.Decode(c.Request.Context(), body)
	if err != nil {
		writeError(c, err)
		return
	}

	recorded, err := s.engine.Record(c.Request.Context(), inv, p, body)
	if err != nil {
		var compliance *rules.ComplianceError
		if errors.As(err, &compliance) {
			c.JSON(http.StatusUnprocessableEntity, DecodeResponse{
				RecordedDocument: recorded,
				Invoice:          inv,
			})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, DecodeResponse{
		RecordedDocument: recorded,
		Invoice:          inv,
	})
}

func (s *Server) handleConvert(c *gin.Context) {
	target := c.Query("target")
	if target == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "target profile is required", Kind: "input"})
		return
	}
	p, err := profile.ByID(target)
	if err != nil {
		writeError(c, err)
		return
	}

	body, err := c.GetRawData()
	if err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "empty request body", Kind: "input"})
		return
	}

	converted, err := s.engine.Convert(c.Request.Context(), body, p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/xml", converted)
}

func (s *Server) handleLedger(c *gin.Context) {
	stats, err := s.engine.LedgerStats()
	if err != nil {
		writeError(c, err)
		return
	}
	entries, err := s.engine.LedgerEntries()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, LedgerResponse{Stats: stats, Entries: entries})
}

func (s *Server) handleLedgerVerify(c *gin.Context) {
	if err := s.engine.VerifyLedger(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"intact": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"intact": true})
}

// writeError maps the closed error taxonomy to HTTP statuses. Unknown
// errors stay opaque: a generic envelope, no stack traces.
func writeError(c *gin.Context, err error) {
	var (
		inputErr      *model.InputError
		immutableErr  *model.ImmutabilityViolationError
		transitionErr *model.TransitionError
		toleranceErr  *model.ToleranceError
		profileErr    *profile.UnsupportedProfileError
		containerErr  *codec.UnrecognizedContainerError
		schemaErr     *codec.UnrecognizedSchemaError
		complianceErr *rules.ComplianceError
		oversizeErr   *engine.OversizeError
		rateErr       *tax.MismatchedTaxRateError
		borderErr     *tax.CrossBorderCategoryError
		negativeErr   *tax.NegativeTotalError
		currencyErr   *money.CurrencyMismatchError
	)

	switch {
	case errors.As(err, &inputErr), errors.As(err, &profileErr),
		errors.As(err, &containerErr), errors.As(err, &schemaErr):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "input"})
	case errors.As(err, &complianceErr):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:    "compliance validation failed",
			Kind:     "compliance",
			Findings: complianceErr.Findings,
		})
	case errors.As(err, &rateErr), errors.As(err, &borderErr),
		errors.As(err, &negativeErr), errors.As(err, &currencyErr),
		errors.As(err, &toleranceErr):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Kind: "tax"})
	case errors.As(err, &immutableErr), errors.As(err, &transitionErr):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Kind: "lifecycle"})
	case errors.As(err, &oversizeErr):
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: err.Error(), Kind: "oversize"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
