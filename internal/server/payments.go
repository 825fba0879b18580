package server

import (
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/smallbiznis/paycore/internal/payment/domain"
)

type createTransactionRequest struct {
	AccountID       string            `json:"account_id" binding:"required"`
	PaymentMethodID string            `json:"payment_method_id" binding:"required"`
	TransactionType string            `json:"transaction_type" binding:"required"`
	ExternalKey     string            `json:"external_key" binding:"required"`
	Amount          string            `json:"amount" binding:"required"`
	Currency        string            `json:"currency" binding:"required"`
	PluginName      string            `json:"plugin_name" binding:"required"`
	Properties      map[string]string `json:"properties"`
	ControlPlugins  []string          `json:"control_plugins"`
}

func (s *Server) createTransaction(c *gin.Context) {
	var body createTransactionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": err.Error()})
		return
	}
	accountID, err := parseID(body.AccountID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_account"})
		return
	}
	paymentMethodID, err := parseID(body.PaymentMethodID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payment_method"})
		return
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount"})
		return
	}

	info, err := s.svc.CreateTransaction(c.Request.Context(), domain.TransactionRequest{
		AccountID:          accountID,
		PaymentMethodID:    paymentMethodID,
		PaymentExternalKey: c.Param("external_key"),
		ExternalKey:        body.ExternalKey,
		TransactionType:    domain.TransactionType(body.TransactionType),
		Amount:             amount,
		Currency:           body.Currency,
		PluginName:         body.PluginName,
		Properties:         body.Properties,
		ControlPluginNames: body.ControlPlugins,
	})
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (s *Server) reconcileTransaction(c *gin.Context) {
	transactionID, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_transaction_id"})
		return
	}
	repaired, err := s.svc.ReconcileNow(c.Request.Context(), transactionID)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"repaired": repaired})
}

func (s *Server) getPayment(c *gin.Context) {
	accountID, err := parseID(c.Query("account_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_account"})
		return
	}
	info, err := s.svc.GetPaymentByExternalKey(c.Request.Context(), accountID, c.Param("external_key"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) renderError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(status, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseID(raw string) (snowflake.ID, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		if err == nil {
			err = strconv.ErrRange
		}
		return 0, err
	}
	return snowflake.ID(n), nil
}
