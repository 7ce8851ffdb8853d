package solrpc

import (
	"context"

	"mmsol/lib/model"
)

// Ping 检查节点健康并返回当前 slot
func (c *Client) Ping(ctx context.Context, ep model.Endpoint) (uint64, error) {
	var health string
	if err := c.call(ctx, ep, &health, "getHealth"); err != nil {
		return 0, err
	}
	if health != "ok" {
		return 0, model.RPCError(nil, "节点状态异常: %s", health)
	}

	var slot uint64
	if err := c.call(ctx, ep, &slot, "getSlot", c.commitment()); err != nil {
		return 0, err
	}
	return slot, nil
}
