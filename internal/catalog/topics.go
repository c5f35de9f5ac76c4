package catalog

import "strconv"

const (
	// consumed from the storefront
	TopicOrderItemAdded = "order.item.added"
	TopicOrderCancelled = "order.cancelled"

	// produced by the engine
	TopicStockAdjusted = "inventory.stock.adjusted"
	TopicStockRejected = "inventory.stock.rejected"
	TopicPriceChanged  = "catalog.price.changed"
)

// Partition key = order_id, so all events of one order stay ordered.
func PartitionKey(orderID int64) []byte {
	return []byte(strconv.FormatInt(orderID, 10))
}
