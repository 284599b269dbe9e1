package service

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/example/vintagemart/internal/datamodels/order"
)

// OrderConfirmQueue 订单确认通知队列
const OrderConfirmQueue = "order_confirm_queue"

// SnapshotItem 订单快照里的单件商品
type SnapshotItem struct {
	ProductID       string `json:"product_id"`
	Name            string `json:"name"`
	PriceAtPurchase int64  `json:"price_at_purchase"`
}

// OrderSnapshot 提交成功后交给通知方的不可变订单快照。
// 收件地址、明细、金额在快照里自包含，worker 不需要回查数据库。
type OrderSnapshot struct {
	OrderID     string         `json:"order_id"`
	Email       string         `json:"email"`
	FirstName   string         `json:"first_name"`
	LastName    string         `json:"last_name"`
	TotalPrice  int64          `json:"total_price"`
	ShippingFee int64          `json:"shipping_fee"`
	Items       []SnapshotItem `json:"items"`
	Address     string         `json:"address"`
}

// Notifier 订单确认通知发布方。事务提交之后才调用，
// 发布失败只记日志，绝不回滚订单。
type Notifier interface {
	PublishOrderConfirmation(ctx context.Context, snap *OrderSnapshot) error
}

// NewSnapshot 从已提交的订单装配快照
func NewSnapshot(o *order.Order, items []SnapshotItem, email string) *OrderSnapshot {
	addr := o.ShippingAddressLine1
	if o.ShippingAddressLine2 != "" {
		addr += ", " + o.ShippingAddressLine2
	}
	addr += ", " + o.ShippingPostalCode + " " + o.ShippingCity + ", " + o.ShippingCountry
	return &OrderSnapshot{
		OrderID:     o.ID.String(),
		Email:       email,
		FirstName:   o.ShippingFirstName,
		LastName:    o.ShippingLastName,
		TotalPrice:  o.TotalPrice,
		ShippingFee: o.ShippingFee,
		Items:       items,
		Address:     addr,
	}
}

type mqNotifier struct {
	conn *amqp.Connection
}

// NewMQNotifier 基于 RabbitMQ 的通知发布方
func NewMQNotifier(conn *amqp.Connection) Notifier {
	return &mqNotifier{conn: conn}
}

func (n *mqNotifier) PublishOrderConfirmation(ctx context.Context, snap *OrderSnapshot) error {
	ch, err := n.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if _, err = ch.QueueDeclare(OrderConfirmQueue, true, false, false, false, nil); err != nil {
		return err
	}

	body, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	return ch.PublishWithContext(
		ctx,
		"",
		OrderConfirmQueue,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}
