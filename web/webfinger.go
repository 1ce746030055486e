package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type webfingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type"`
	Href string `json:"href"`
}

type webfingerResponse struct {
	Subject string          `json:"subject"`
	Aliases []string        `json:"aliases,omitempty"`
	Links   []webfingerLink `json:"links"`
}

// handleWebfinger resolves acct:user@domain to the user's actor URI.
func (s *server) handleWebfinger(c *gin.Context) {
	resource := c.Query("resource")
	username, ok := strings.CutPrefix(resource, "acct:")
	if !ok {
		c.JSON(http.StatusNotFound, GetWebFingerNotFound())
		return
	}
	username, host, found := strings.Cut(username, "@")
	if found && !strings.EqualFold(host, s.conf.Conf.SslDomain) {
		c.JSON(http.StatusNotFound, GetWebFingerNotFound())
		return
	}

	href := s.urls.Actor(username)
	if username == s.conf.Conf.ApplicationUser {
		href = s.urls.ApplicationActor()
	} else if _, err := s.store.ReadAccByUsername(c.Request.Context(), username); err != nil {
		c.JSON(http.StatusNotFound, GetWebFingerNotFound())
		return
	}

	c.Header("Content-Type", "application/jrd+json; charset=utf-8")
	c.JSON(http.StatusOK, webfingerResponse{
		Subject: fmt.Sprintf("acct:%s@%s", username, s.conf.Conf.SslDomain),
		Aliases: []string{href},
		Links: []webfingerLink{{
			Rel:  "self",
			Type: "application/activity+json",
			Href: href,
		}},
	})
}

func GetWebFingerNotFound() gin.H {
	return gin.H{"detail": "Not Found"}
}
