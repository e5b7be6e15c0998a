package handlers

import (
	"io"
	"log"
	"net/http"

	"smartcart-api/pkg/models"
	"smartcart-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// ChatHandler チャットエンドポイントのハンドラ
type ChatHandler struct {
	router *services.IntentRouter
}

// NewChatHandler 新しいChatHandlerを作成
func NewChatHandler(router *services.IntentRouter) *ChatHandler {
	return &ChatHandler{
		router: router,
	}
}

// Chat はチャットメッセージを処理します。構造化インテントにマッチした
// 場合はJSONを、マッチしない場合は生成テキストをストリーミングで返します。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストの形式が正しくありません: " + err.Error()})
		return
	}

	outcome, fragments, err := h.router.Route(c.Request.Context(), req.UserID, req.Message, req.ConversationHistory)
	if err != nil {
		log.Printf("インテント処理に失敗: %v", err)
		c.JSON(http.StatusInternalServerError, models.IntentOutcome{
			Type:    models.IntentError,
			Message: "Something went wrong while processing your message. Please try again.",
		})
		return
	}

	if outcome != nil {
		c.JSON(http.StatusOK, outcome)
		return
	}

	// 生成テキストフォールバック: チャンクをそのまま流す。
	// クライアント切断はリクエストコンテキスト経由で生成側に伝わる。
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	for fragment := range fragments {
		if _, err := io.WriteString(c.Writer, fragment); err != nil {
			log.Printf("ストリーム書き込みに失敗: %v", err)
			return
		}
		c.Writer.Flush()
	}
}
