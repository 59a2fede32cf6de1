package gateway

import (
	"context"

	"tiendapos/internal/domain"
)

// Client is the typed command surface used by the register core.
type Client struct {
	invoker Invoker
}

func NewClient(invoker Invoker) *Client {
	return &Client{invoker: invoker}
}

func (c *Client) ProcessSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	var resp domain.SaleResponse
	err := c.invoker.Invoke(ctx, CmdProcessSale, req, &resp)
	return resp, err
}

func (c *Client) ProcessReturn(ctx context.Context, req domain.ReturnRequest) (domain.ReturnResponse, error) {
	var resp domain.ReturnResponse
	err := c.invoker.Invoke(ctx, CmdProcessReturn, req, &resp)
	return resp, err
}

func (c *Client) GetSaleWithReturnInfo(ctx context.Context, saleID string) (domain.SaleDetail, error) {
	var resp domain.SaleDetail
	err := c.invoker.Invoke(ctx, CmdGetSaleWithReturnInfo, domain.SaleDetailRequest{SaleID: saleID}, &resp)
	return resp, err
}

// GetActiveShift returns nil when the register has no open shift.
func (c *Client) GetActiveShift(ctx context.Context, registerID string) (*domain.Shift, error) {
	var resp *domain.Shift
	if err := c.invoker.Invoke(ctx, CmdGetActiveShift, domain.ActiveShiftRequest{RegisterID: registerID}, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (domain.Shift, error) {
	var resp domain.Shift
	err := c.invoker.Invoke(ctx, CmdOpenShift, req, &resp)
	return resp, err
}

func (c *Client) CloseShift(ctx context.Context, req domain.ShiftCloseRequest) (domain.Shift, error) {
	var resp domain.Shift
	err := c.invoker.Invoke(ctx, CmdCloseShift, req, &resp)
	return resp, err
}

func (c *Client) RegisterCashMovement(ctx context.Context, req domain.CashMovementRequest) (domain.CashMovement, error) {
	var resp domain.CashMovement
	err := c.invoker.Invoke(ctx, CmdRegisterCashMovement, req, &resp)
	return resp, err
}

func (c *Client) GetShiftDetails(ctx context.Context, shiftID string) (domain.ShiftDetails, error) {
	var resp domain.ShiftDetails
	err := c.invoker.Invoke(ctx, CmdGetShiftDetails, domain.ShiftDetailsRequest{ShiftID: shiftID}, &resp)
	return resp, err
}

func (c *Client) GetProductByID(ctx context.Context, id string) (domain.Product, error) {
	var resp domain.Product
	err := c.invoker.Invoke(ctx, CmdGetProductByID, domain.ProductRequest{ID: id}, &resp)
	return resp, err
}

func (c *Client) GetAllActivePromotions(ctx context.Context) ([]domain.Promotion, error) {
	var resp []domain.Promotion
	err := c.invoker.Invoke(ctx, CmdGetAllActivePromotions, nil, &resp)
	return resp, err
}

func (c *Client) GetAllActiveKits(ctx context.Context) ([]domain.KitDefinition, error) {
	var resp []domain.KitDefinition
	err := c.invoker.Invoke(ctx, CmdGetAllActiveKits, nil, &resp)
	return resp, err
}
