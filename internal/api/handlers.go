package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"shopcore/internal/auth"
	"shopcore/internal/domain"
	"shopcore/internal/gateway"
	"shopcore/internal/payment"
)

// mutationEnvelope is the write request body. Only Fields is applied to
// the target document; anything else in the body is ignored.
type mutationEnvelope struct {
	Fields map[string]any `json:"fields"`
}

func (s *Server) handleInsert(c *gin.Context) {
	var body mutationEnvelope
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Success: false, Message: "invalid request body"})
		return
	}
	doc, err := s.gateway.Insert(principalFrom(c), c.Param("collection"), body.Fields)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, "created", doc)
}

func (s *Server) handleUpdate(c *gin.Context) {
	var body mutationEnvelope
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Success: false, Message: "invalid request body"})
		return
	}
	doc, err := s.gateway.Update(principalFrom(c), c.Param("collection"), c.Param("id"), body.Fields)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "updated", doc)
}

func (s *Server) handleDelete(c *gin.Context) {
	if err := s.gateway.Delete(principalFrom(c), c.Param("collection"), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "deleted", nil)
}

func (s *Server) handleList(c *gin.Context) {
	docs, err := s.gateway.List(principalFrom(c), c.Param("collection"), c.Query("dynamicConditions"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "", docs)
}

func (s *Server) handlePaginate(c *gin.Context) {
	params := gateway.PageParams{
		Conditions:   c.Query("dynamicConditions"),
		Search:       c.Query("search"),
		SearchFields: splitParam(c.Query("searchFields")),
		Page:         intQuery(c, "page"),
		PageSize:     intQuery(c, "limit"),
		SortBy:       c.Query("sortBy"),
		SortDesc:     strings.EqualFold(c.Query("order"), "desc"),
		Populate:     splitParam(c.Query("populate")),
	}
	page, err := s.gateway.Paginate(principalFrom(c), c.Param("collection"), params)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "", page)
}

// publicListParams reads the shared query knobs of the unauthenticated
// catalog endpoints. sortOrder defaults to newest first.
func publicListParams(c *gin.Context) gateway.PublicListParams {
	limit, _ := strconv.Atoi(c.Query("limit"))
	return gateway.PublicListParams{
		Search:   c.Query("search"),
		Category: c.Query("categoryId"),
		Limit:    limit,
		SortBy:   c.Query("sortField"),
		SortAsc:  c.Query("sortOrder") == "asc",
	}
}

func (s *Server) handlePublicProducts(c *gin.Context) {
	params := publicListParams(c)
	params.PopulateCategory = c.Query("populateCategory") == "true"
	ok(c, http.StatusOK, "", s.gateway.PublicProducts(params))
}

func (s *Server) handlePublicPromotions(c *gin.Context) {
	params := publicListParams(c)
	params.ActiveOnly = c.Query("isActive") == "true"
	ok(c, http.StatusOK, "", s.gateway.PublicPromotions(params))
}

func (s *Server) handleDashboard(c *gin.Context) {
	stats, err := s.gateway.Dashboard(principalFrom(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "", stats)
}

func (s *Server) handleCounterPeek(c *gin.Context) {
	value, err := s.counters.Peek(c.Param("branchId"), c.Param("collection"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "", gin.H{"nextId": value})
}

func (s *Server) handleCounterIncrement(c *gin.Context) {
	if err := s.counters.Increment(c.Param("branchId"), c.Param("collection")); err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "incremented", nil)
}

type otpRequest struct {
	Phone string `json:"phone" binding:"required"`
}

func (s *Server) handleOTPRequest(c *gin.Context) {
	var body otpRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Success: false, Message: "phone is required"})
		return
	}
	if err := s.auth.OTP().Request(body.Phone); err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "verification code sent", nil)
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required"`
	Code     string `json:"code" binding:"required"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var body registerRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Success: false, Message: "name, phone, password and code are required"})
		return
	}
	session, err := s.auth.Register(auth.RegisterInput{
		Name:     body.Name,
		Phone:    body.Phone,
		Password: body.Password,
		Code:     body.Code,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, "registered", gin.H{"token": session.Token, "user": session.User})
}

type loginRequest struct {
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var body loginRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Success: false, Message: "phone and password are required"})
		return
	}
	session, err := s.auth.Login(body.Phone, body.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "logged in", gin.H{"token": session.Token, "user": session.User})
}

func (s *Server) handleGuest(c *gin.Context) {
	session, err := s.auth.Guest()
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, "guest session", gin.H{"token": session.Token, "user": session.User})
}

func (s *Server) handleLogout(c *gin.Context) {
	s.auth.Logout(bearerToken(c.Request))
	ok(c, http.StatusOK, "logged out", nil)
}

type passwordRequest struct {
	Phone string `json:"phone" binding:"required"`
}

func (s *Server) handlePasswordRequest(c *gin.Context) {
	var body passwordRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Success: false, Message: "phone is required"})
		return
	}
	if err := s.auth.RequestPasswordReset(body.Phone); err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "verification code sent", nil)
}

type passwordConfirmRequest struct {
	Phone string `json:"phone" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

func (s *Server) handlePasswordConfirm(c *gin.Context) {
	var body passwordConfirmRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Success: false, Message: "phone and code are required"})
		return
	}
	resetToken, err := s.auth.ConfirmPasswordReset(body.Phone, body.Code)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "code verified", gin.H{"resetToken": resetToken})
}

type passwordResetRequest struct {
	ResetToken  string `json:"resetToken" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

func (s *Server) handlePasswordReset(c *gin.Context) {
	var body passwordResetRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Success: false, Message: "resetToken and newPassword are required"})
		return
	}
	if err := s.auth.ResetPassword(body.ResetToken, body.NewPassword); err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "password updated", nil)
}

type generateQRRequest struct {
	OrderID  string  `json:"orderId"`
	BranchID string  `json:"branchId"`
	Phone    string  `json:"phone"`
	Amount   float64 `json:"amount" binding:"required"`
	Currency string  `json:"currency" binding:"required"`
}

// payerPrincipal resolves who a QR is issued for: a session token when
// present, otherwise a find-or-create guest keyed by phone.
func (s *Server) payerPrincipal(c *gin.Context, phone string) (domain.Principal, bool) {
	if raw := bearerToken(c.Request); raw != "" {
		principal, err := s.auth.Authenticate(raw)
		if err != nil {
			s.fail(c, err)
			return domain.Principal{}, false
		}
		return principal, true
	}
	if phone == "" {
		c.JSON(http.StatusUnauthorized, APIResponse{Success: false, Message: "a bearer token or a phone number is required"})
		return domain.Principal{}, false
	}
	session, err := s.auth.EnsureGuest(phone)
	if err != nil {
		s.fail(c, err)
		return domain.Principal{}, false
	}
	return auth.PrincipalOf(session.User), true
}

func (s *Server) handleGenerateQR(c *gin.Context) {
	var body generateQRRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Success: false, Message: "amount and currency are required"})
		return
	}
	payer, resolved := s.payerPrincipal(c, body.Phone)
	if !resolved {
		return
	}
	branch := body.BranchID
	if branch == "" {
		branch = s.cfg.DefaultBranchId
	}
	tx, err := s.payments.GenerateQR(payer, payment.GenerateInput{
		OrderID:  body.OrderID,
		BranchID: branch,
		Amount:   body.Amount,
		Currency: body.Currency,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, "qr issued", tx)
}

func (s *Server) handlePaymentStatus(c *gin.Context) {
	status, err := s.payments.Status(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "", gin.H{"paymentStatus": status})
}

func (s *Server) handlePaymentScan(c *gin.Context) {
	if err := s.payments.RecordScan(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "scan recorded", nil)
}

func (s *Server) handlePaymentConfirm(c *gin.Context) {
	tx, err := s.payments.Confirm(principalFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "confirmed", tx)
}

type webhookRequest struct {
	BillNumber  string `json:"billNumber" binding:"required"`
	ProviderRef string `json:"providerRefId"`
}

func (s *Server) handlePaymentWebhook(c *gin.Context) {
	var body webhookRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Success: false, Message: "billNumber is required"})
		return
	}
	tx, err := s.payments.MarkPaid(body.BillNumber, body.ProviderRef)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, "paid", tx)
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func intQuery(c *gin.Context, name string) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return n
}
