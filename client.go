package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

// ===============================
// HTTP 客户端
// ===============================

// pinnedDialer 返回强制连接到指定IP的 DialContext，ip 为空时按域名正常解析
func pinnedDialer(ip string, timeout time.Duration) func(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	if ip == "" {
		return dialer.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		_, port, err := net.SplitHostPort(addr)
		if err != nil {
			port = "443"
		}
		return dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
	}
}

// 创建 HTTP/1.1 客户端
func createHTTP1Client(ip string, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: pinnedDialer(ip, timeout),
		TLSClientConfig: &tls.Config{
			// 不进行 HTTP/2 ALPN 协商
			NextProtos: []string{"http/1.1"},
		},
		ForceAttemptHTTP2:   false,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// 创建 HTTP/2 客户端
func createHTTP2Client(ip string, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: pinnedDialer(ip, timeout),
		TLSClientConfig: &tls.Config{
			NextProtos: []string{"h2", "http/1.1"},
		},
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// 创建 HTTP/3 客户端
func createHTTP3Client(ip string, timeout time.Duration) *http.Client {
	transport := &http3.Transport{
		TLSClientConfig: &tls.Config{},
		Dial: func(ctx context.Context, addr string, tlsCfg *tls.Config, cfg *quic.Config) (*quic.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				host, port = addr, "443"
			}
			if ip != "" {
				host = ip
			}
			udpAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, port))
			if err != nil {
				return nil, fmt.Errorf("解析UDP地址失败: %w", err)
			}
			udpConn, err := net.ListenUDP("udp", nil)
			if err != nil {
				return nil, fmt.Errorf("创建UDP连接失败: %w", err)
			}
			conn, err := quic.Dial(ctx, udpConn, udpAddr, tlsCfg, cfg)
			if err != nil {
				udpConn.Close()
				return nil, err
			}
			return conn, nil
		},
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// NewHTTPClient 按配置的协议创建探测用客户端
func NewHTTPClient(protocol Protocol, ip string, timeout time.Duration) (*http.Client, error) {
	switch protocol {
	case HTTP1:
		return createHTTP1Client(ip, timeout), nil
	case HTTP2:
		return createHTTP2Client(ip, timeout), nil
	case HTTP3:
		return createHTTP3Client(ip, timeout), nil
	default:
		return nil, fmt.Errorf("不支持的协议: %v", protocol)
	}
}
