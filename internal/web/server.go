// Package web gin server
package web

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	gmw "github.com/Laisky/gin-middlewares/v7"
	gconfig "github.com/Laisky/go-config/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Laisky/laisky-drive/library/log"
)

const defaultCORSDomain = "laisky.com"

// cgnatNet is the tailnet address range whose origins are always trusted.
var cgnatNet = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// NewServer assembles the gin engine with middlewares and every drive route.
func NewServer(ctl *Controller, logger logSDK.Logger) *gin.Engine {
	if logger == nil {
		logger = log.Logger.Named("gin")
	}

	server := gin.New()
	// folder segments are percent-decoded by the path resolver
	server.UseRawPath = true
	server.UnescapePathValues = false
	server.Use(
		gin.Recovery(),
		gmw.NewLoggerMiddleware(
			gmw.WithLogger(logger),
		),
		allowCORS,
	)

	server.Any("/health", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "hello, world")
	})
	server.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ctl.Register(server.Group("/api/v1"))
	return server
}

// RunServer blocks serving the drive API on addr.
func RunServer(addr string, ctl *Controller) {
	if !gconfig.Shared.GetBool("debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	server := NewServer(ctl, log.Logger.Named("gin"))

	log.Logger.Info("listening on http", zap.String("addr", addr))
	log.Logger.Panic("httpServer exit", zap.Error(server.Run(addr)))
}

// corsDomains returns the configured registrable domains allowed for CORS.
func corsDomains() []string {
	domains := gconfig.Shared.GetStringSlice("settings.web.cors_domains")
	out := make([]string, 0, len(domains))
	for _, domain := range domains {
		domain = strings.ToLower(strings.Trim(strings.TrimSpace(domain), "."))
		if domain != "" {
			out = append(out, domain)
		}
	}
	if len(out) == 0 {
		out = append(out, defaultCORSDomain)
	}
	return out
}

// isAllowedOrigin matches the origin host against the configured domains,
// their subdomains, and CGNAT addresses.
func isAllowedOrigin(origin string) bool {
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}
	if ip := net.ParseIP(host); ip != nil {
		return cgnatNet.Contains(ip)
	}

	for _, domain := range corsDomains() {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func allowCORS(ctx *gin.Context) {
	origin := strings.TrimSpace(ctx.Request.Header.Get("Origin"))

	if origin == "" {
		if ctx.Request.Method == http.MethodOptions {
			ctx.Header("Access-Control-Allow-Origin", "*")
			ctx.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS, HEAD")
			ctx.Header("Access-Control-Allow-Headers", "*")
			ctx.Header("Access-Control-Max-Age", "86400")
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}
		ctx.Next()
		return
	}

	if isAllowedOrigin(origin) {
		ctx.Header("Access-Control-Allow-Origin", origin)
		ctx.Header("Access-Control-Allow-Credentials", "true")
		ctx.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS, HEAD")
		ctx.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Origin, X-Requested-With")
		ctx.Header("Access-Control-Max-Age", "86400") // 24 hours
		ctx.Header("Vary", "Origin")

		if ctx.Request.Method == http.MethodOptions {
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}
	} else if ctx.Request.Method == http.MethodOptions {
		// deny preflight from disallowed origins
		ctx.AbortWithStatus(http.StatusForbidden)
		return
	}

	ctx.Next()
}
