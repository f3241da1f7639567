package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"marketchat/internal/domain/entity"
	"marketchat/internal/usecase"
	"marketchat/pkg/errors"
	"marketchat/pkg/response"
	"marketchat/pkg/utils"
)

type ChatHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase) *ChatHandler {
	return &ChatHandler{
		chatUseCase: chatUseCase,
	}
}

type startConversationRequest struct {
	ListingID string `json:"listing_id" validate:"required"`
	SellerID  string `json:"seller_id" validate:"required"`
	Content   string `json:"content" validate:"max=4000"`
}

type attachmentRequest struct {
	URL  string `json:"url" validate:"required,url"`
	Type string `json:"type" validate:"required"`
	Name string `json:"name"`
	Size int64  `json:"size" validate:"gte=0"`
}

type sendMessageRequest struct {
	Content     string              `json:"content" validate:"max=4000"`
	Type        string              `json:"type" validate:"omitempty,oneof=text image location contact system"`
	Attachments []attachmentRequest `json:"attachments" validate:"omitempty,max=10,dive"`
}

type markReadRequest struct {
	MessageIDs []string `json:"message_ids" validate:"max=500"`
}

type markSuspiciousRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// ListConversations returns the caller's active conversations, most recently
// updated first.
func (h *ChatHandler) ListConversations(c echo.Context) error {
	userID := c.Get("uid").(string)
	pagination := utils.GetPaginationParams(c)

	conversations, total, err := h.chatUseCase.ListConversations(
		c.Request().Context(),
		userID,
		c.QueryParam("filter"),
		pagination.PageSize,
		pagination.Offset,
	)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, conversations, total, pagination.Page, pagination.PageSize)
}

func (h *ChatHandler) GetUnreadSummary(c echo.Context) error {
	userID := c.Get("uid").(string)

	summary, err := h.chatUseCase.GetUnreadSummary(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, summary)
}

// GetConversation returns the conversation with its newest page of messages.
// ?markRead=true marks the page's incoming messages read.
func (h *ChatHandler) GetConversation(c echo.Context) error {
	userID := c.Get("uid").(string)
	conversationID := c.Param("id")
	pagination := utils.GetPaginationParamsWithDefault(c, 50)
	markRead, _ := strconv.ParseBool(c.QueryParam("markRead"))

	detail, err := h.chatUseCase.GetConversation(
		c.Request().Context(),
		userID,
		conversationID,
		pagination.PageSize,
		pagination.Offset,
		markRead,
	)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{
		"conversation": detail.Conversation,
		"messages":     response.NewPage(detail.Messages, detail.Total, pagination.Page, pagination.PageSize),
		"marked_read":  detail.MarkedRead,
	})
}

func (h *ChatHandler) ListMessages(c echo.Context) error {
	userID := c.Get("uid").(string)
	pagination := utils.GetPaginationParamsWithDefault(c, 50)

	messages, total, err := h.chatUseCase.ListMessages(
		c.Request().Context(),
		userID,
		c.Param("id"),
		pagination.PageSize,
		pagination.Offset,
	)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, messages, total, pagination.Page, pagination.PageSize)
}

// StartConversation is the contact-seller entry point. It answers 201 when a
// conversation was created and 200 when an existing one was reused.
func (h *ChatHandler) StartConversation(c echo.Context) error {
	var req startConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)
	conversation, created, err := h.chatUseCase.StartConversation(c.Request().Context(), userID, usecase.StartConversationInput{
		ListingID: req.ListingID,
		SellerID:  req.SellerID,
		Content:   req.Content,
	})
	if err != nil {
		return response.Error(c, err)
	}

	if created {
		return response.Created(c, conversation)
	}
	return response.Success(c, conversation)
}

func (h *ChatHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	attachments := make([]entity.Attachment, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		attachments = append(attachments, entity.Attachment{URL: a.URL, Type: a.Type, Name: a.Name, Size: a.Size})
	}

	userID := c.Get("uid").(string)
	message, err := h.chatUseCase.SendMessage(c.Request().Context(), userID, c.Param("id"), usecase.SendMessageInput{
		Content:     req.Content,
		Type:        entity.MessageType(req.Type),
		Attachments: attachments,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}

func (h *ChatHandler) MarkMessagesRead(c echo.Context) error {
	var req markReadRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)
	flipped, err := h.chatUseCase.MarkMessagesRead(c.Request().Context(), userID, c.Param("id"), req.MessageIDs)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{
		"message_ids": flipped,
	})
}

// UploadAttachment stores a multipart "file" and returns the attachment to
// reference from a later message.
func (h *ChatHandler) UploadAttachment(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return response.Error(c, errors.BadRequest("file is required", err))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return response.Error(c, errors.BadRequest("Unable to read uploaded file", err))
	}
	defer file.Close()

	userID := c.Get("uid").(string)
	attachment, err := h.chatUseCase.UploadAttachment(c.Request().Context(), userID, c.Param("id"), fileHeader.Filename, file)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, attachment)
}

func (h *ChatHandler) DeleteConversation(c echo.Context) error {
	userID := c.Get("uid").(string)

	if err := h.chatUseCase.DeleteConversation(c.Request().Context(), userID, c.Param("id")); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{
		"message": "Conversation deleted",
	})
}

func (h *ChatHandler) MarkSuspicious(c echo.Context) error {
	var req markSuspiciousRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)
	if err := h.chatUseCase.MarkSuspicious(c.Request().Context(), userID, c.Param("id"), req.Reason); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{
		"message": "Conversation flagged for review",
	})
}
