package main

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	gomail "gopkg.in/gomail.v2"

	"github.com/example/vintagemart/internal/config"
	"github.com/example/vintagemart/internal/infra/mq"
	"github.com/example/vintagemart/internal/service"
)

func init() {
	// 初始化监控
	_ = service.GetMonitor()
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	mqConn := mq.Init(&cfg.RabbitMQ)
	dialer := gomail.NewDialer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password)

	ch, err := mqConn.Channel()
	if err != nil {
		log.Fatalf("failed to open channel: %v", err)
	}
	defer ch.Close()

	if _, err = ch.QueueDeclare(service.OrderConfirmQueue, true, false, false, false, nil); err != nil {
		log.Fatalf("failed to declare queue: %v", err)
	}

	// 手动确认模式，发信成功才 ack
	msgs, err := ch.Consume(service.OrderConfirmQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("failed to consume: %v", err)
	}

	log.Println("notify worker started, waiting for messages...")

	for d := range msgs {
		var snap service.OrderSnapshot
		if err := json.Unmarshal(d.Body, &snap); err != nil {
			log.Printf("invalid message: %v", err)
			// 消息格式错误，拒绝并丢弃
			_ = d.Nack(false, false)
			continue
		}
		handleMessage(dialer, cfg, &snap, d)
	}
}

func handleMessage(dialer *gomail.Dialer, cfg *config.Config, snap *service.OrderSnapshot, d amqp.Delivery) {
	m := gomail.NewMessage()
	m.SetHeader("From", cfg.SMTP.From)
	m.SetHeader("To", snap.Email)
	m.SetHeader("Subject", fmt.Sprintf("订单确认 #%s", snap.OrderID))
	m.SetBody("text/plain", renderBody(snap))

	if err := dialer.DialAndSend(m); err != nil {
		log.Printf("send confirmation mail failed for order %s: %v", snap.OrderID, err)
		service.GetMonitor().RecordWorkerFailed()
		// 首次失败重回队列再试一次，重投过的直接丢弃，避免坏消息空转
		_ = d.Nack(false, !d.Redelivered)
		return
	}

	service.GetMonitor().RecordWorkerProcessed()
	log.Printf("confirmation mail sent for order %s to %s", snap.OrderID, snap.Email)
	_ = d.Ack(false)
}

func renderBody(snap *service.OrderSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s 您好，\n\n", snap.FirstName, snap.LastName)
	fmt.Fprintf(&b, "您的订单 %s 已确认，明细如下：\n\n", snap.OrderID)
	for _, item := range snap.Items {
		fmt.Fprintf(&b, "  - %s  %s\n", item.Name, formatPrice(item.PriceAtPurchase))
	}
	fmt.Fprintf(&b, "\n运费：%s\n", formatPrice(snap.ShippingFee))
	fmt.Fprintf(&b, "合计：%s\n\n", formatPrice(snap.TotalPrice))
	fmt.Fprintf(&b, "收货地址：%s\n", snap.Address)
	return b.String()
}

func formatPrice(cents int64) string {
	return fmt.Sprintf("%.2f", float64(cents)/100.0)
}
