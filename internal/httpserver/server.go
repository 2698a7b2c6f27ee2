// Package httpserver exposes the booking subsystem over HTTP.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SevaSetuLabs/booking/pkg/booking"
	"github.com/SevaSetuLabs/booking/pkg/pricing"
)

const (
	errorCodeInvalidPayload  = "invalid_payload"
	errorCodeInvalidStatus   = "invalid_status"
	errorCodeInvalidRole     = "invalid_role"
	errorCodeNotFound        = "not_found"
	errorCodeForbidden       = "forbidden"
	errorCodeConflict        = "conflict"
	errorCodeOutOfRange      = "out_of_range"
	errorCodeAlreadyRefunded = "already_refunded"
	errorCodeInternal        = "internal"
)

// BookingService is the slice of the booking service the handlers need.
type BookingService interface {
	RequestTransition(ctx context.Context, bookingID string, desired booking.Status, role booking.Role) (booking.TransitionResult, error)
	VerifyArrival(ctx context.Context, bookingID, providerID string, latitudeDegrees, longitudeDegrees float64, startCode string) (booking.ArrivalResult, error)
	AssessPenalty(ctx context.Context, providerID, bookingID string, violation booking.ViolationType) (booking.Penalty, error)
	ReversePenalty(ctx context.Context, penaltyID string, role booking.Role) (booking.ReversalResult, error)
	ProcessGuaranteeRefund(ctx context.Context, bookingID, reason string) (booking.RefundResult, error)
}

// PriceEstimator is the pricing engine surface.
type PriceEstimator interface {
	Estimate(quote pricing.Quote) (pricing.Breakdown, error)
	EstimateProviderEarnings(totalCents int64) int64
}

// BalanceReader exposes wallet balances for the read endpoint.
type BalanceReader interface {
	Balance(ctx context.Context, userID string) (int64, error)
}

// Server hosts the HTTP API.
type Server struct {
	config         Config
	logger         *zap.Logger
	bookings       BookingService
	pricer         PriceEstimator
	wallet         BalanceReader
	metricsHandler http.Handler
}

// New wires a Server. metricsHandler may be nil to disable /metrics.
func New(config Config, logger *zap.Logger, bookings BookingService, pricer PriceEstimator, wallet BalanceReader, metricsHandler http.Handler) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		config:         config.Defaulted(),
		logger:         logger,
		bookings:       bookings,
		pricer:         pricer,
		wallet:         wallet,
		metricsHandler: metricsHandler,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    server.config.ListenAddr,
		Handler: server.router(),
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("http server listening", zap.String("addr", server.config.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (server *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if server.metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(server.metricsHandler))
	}

	api := router.Group("/api")
	api.POST("/bookings/:booking_id/transition", server.handleTransition)
	api.POST("/bookings/:booking_id/arrival", server.handleArrival)
	api.POST("/bookings/:booking_id/refund", server.handleRefund)
	api.POST("/penalties", server.handleAssessPenalty)
	api.POST("/penalties/:penalty_id/reverse", server.handleReversePenalty)
	api.GET("/pricing/estimate", server.handlePriceEstimate)
	api.GET("/pricing/earnings", server.handleProviderEarnings)
	api.GET("/wallets/:user_id", server.handleWalletBalance)

	return router
}

type transitionRequest struct {
	Status string `json:"status" binding:"required"`
	Role   string `json:"role" binding:"required"`
}

func (server *Server) handleTransition(ctx *gin.Context) {
	var request transitionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body with status and role"))
		return
	}
	desired, err := booking.ParseStatus(request.Status)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidStatus, err.Error()))
		return
	}
	role, err := booking.ParseRole(request.Role)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidRole, err.Error()))
		return
	}

	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), server.config.RequestTimeout)
	defer cancel()
	result, err := server.bookings.RequestTransition(requestCtx, ctx.Param("booking_id"), desired, role)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"applied": result.Applied,
		"status":  result.Status.String(),
		"reason":  result.Reason,
	})
}

type arrivalRequest struct {
	ProviderID       string  `json:"provider_id" binding:"required"`
	LatitudeDegrees  float64 `json:"latitude"`
	LongitudeDegrees float64 `json:"longitude"`
	StartCode        string  `json:"start_code"`
}

func (server *Server) handleArrival(ctx *gin.Context) {
	var request arrivalRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body with provider_id and coordinates"))
		return
	}

	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), server.config.RequestTimeout)
	defer cancel()
	result, err := server.bookings.VerifyArrival(requestCtx, ctx.Param("booking_id"), request.ProviderID,
		request.LatitudeDegrees, request.LongitudeDegrees, request.StartCode)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	response := gin.H{
		"status":          result.Status.String(),
		"distance_meters": result.DistanceMeters,
	}
	if result.AlreadyConfirmed {
		response["already_confirmed"] = true
	}
	ctx.JSON(http.StatusOK, response)
}

type refundRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (server *Server) handleRefund(ctx *gin.Context) {
	var request refundRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body with reason"))
		return
	}

	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), server.config.RequestTimeout)
	defer cancel()
	result, err := server.bookings.ProcessGuaranteeRefund(requestCtx, ctx.Param("booking_id"), request.Reason)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	response := gin.H{"refunded": result.Refunded}
	if result.Reason != "" {
		response["reason"] = result.Reason
	}
	if result.Refunded {
		response["refund_id"] = result.Refund.RefundID
		response["amount_cents"] = result.Refund.AmountCents
	}
	ctx.JSON(http.StatusOK, response)
}

type penaltyRequest struct {
	ProviderID string `json:"provider_id" binding:"required"`
	BookingID  string `json:"booking_id" binding:"required"`
	Violation  string `json:"violation" binding:"required"`
}

func (server *Server) handleAssessPenalty(ctx *gin.Context) {
	var request penaltyRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body with provider_id, booking_id, violation"))
		return
	}

	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), server.config.RequestTimeout)
	defer cancel()
	penalty, err := server.bookings.AssessPenalty(requestCtx, request.ProviderID, request.BookingID, booking.ViolationType(request.Violation))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"penalty_id":     penalty.PenaltyID,
		"tier":           string(penalty.Tier),
		"amount_cents":   penalty.AmountCents,
		"action":         string(penalty.Action),
		"offense_number": penalty.OffenseNumber,
	})
}

type reversePenaltyRequest struct {
	Role string `json:"role" binding:"required"`
}

func (server *Server) handleReversePenalty(ctx *gin.Context) {
	var request reversePenaltyRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body with role"))
		return
	}
	role, err := booking.ParseRole(request.Role)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidRole, err.Error()))
		return
	}

	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), server.config.RequestTimeout)
	defer cancel()
	result, err := server.bookings.ReversePenalty(requestCtx, ctx.Param("penalty_id"), role)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"reversed": result.Reversed,
		"reason":   result.Reason,
	})
}

type estimateQuery struct {
	BaseCentsPerHour int64 `form:"base_cents_per_hour" binding:"required"`
	DurationMinutes  int   `form:"duration_minutes" binding:"required"`
	ScheduledUnixUTC int64 `form:"scheduled_unix_utc" binding:"required"`
	Samagri          bool  `form:"samagri"`
	SamagriCents     int64 `form:"samagri_cents"`
}

func (server *Server) handlePriceEstimate(ctx *gin.Context) {
	var query estimateQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected base_cents_per_hour, duration_minutes, scheduled_unix_utc"))
		return
	}
	breakdown, err := server.pricer.Estimate(pricing.Quote{
		BaseCentsPerHour: query.BaseCentsPerHour,
		DurationMinutes:  query.DurationMinutes,
		Scheduled:        time.Unix(query.ScheduledUnixUTC, 0).UTC(),
		Now:              time.Now().UTC(),
		SamagriRequested: query.Samagri,
		SamagriCents:     query.SamagriCents,
	})
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, err.Error()))
		return
	}
	ctx.JSON(http.StatusOK, breakdown)
}

type earningsQuery struct {
	TotalCents int64 `form:"total_cents" binding:"required"`
}

func (server *Server) handleProviderEarnings(ctx *gin.Context) {
	var query earningsQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected total_cents"))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"total_cents":    query.TotalCents,
		"earnings_cents": server.pricer.EstimateProviderEarnings(query.TotalCents),
	})
}

func (server *Server) handleWalletBalance(ctx *gin.Context) {
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), server.config.RequestTimeout)
	defer cancel()
	balance, err := server.wallet.Balance(requestCtx, ctx.Param("user_id"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"balance_cents": balance})
}

func (server *Server) respondError(ctx *gin.Context, err error) {
	statusCode, code := mapToHTTPError(err)
	if statusCode == http.StatusInternalServerError {
		server.logger.Error("request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
	}
	ctx.JSON(statusCode, errorResponse(code, err.Error()))
}

func mapToHTTPError(source error) (int, string) {
	switch {
	case errors.Is(source, booking.ErrNotFound):
		return http.StatusNotFound, errorCodeNotFound
	case errors.Is(source, booking.ErrRoleNotPermitted),
		errors.Is(source, booking.ErrNotAssignedProvider),
		errors.Is(source, booking.ErrStartCodeMismatch):
		return http.StatusForbidden, errorCodeForbidden
	case errors.Is(source, booking.ErrInvalidTransition),
		errors.Is(source, booking.ErrStaleStatus),
		errors.Is(source, booking.ErrMissingLocation):
		return http.StatusConflict, errorCodeConflict
	case errors.Is(source, booking.ErrAlreadyRefunded):
		return http.StatusConflict, errorCodeAlreadyRefunded
	case errors.Is(source, booking.ErrOutOfRange):
		return http.StatusUnprocessableEntity, errorCodeOutOfRange
	case errors.Is(source, booking.ErrInvalidStatus),
		errors.Is(source, booking.ErrInvalidRole),
		errors.Is(source, booking.ErrInvalidCoordinates):
		return http.StatusBadRequest, errorCodeInvalidPayload
	}
	return http.StatusInternalServerError, errorCodeInternal
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
