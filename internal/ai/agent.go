// Package ai answers back-office questions with Gemini function calling
// over the authoritative store.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go-pos-sync/internal/database"
	"go-pos-sync/internal/models"
	"go-pos-sync/internal/processor"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"gorm.io/gorm"
)

const (
	modelName = "gemini-2.0-flash-001"
	// Upper bound on tool round trips per question.
	maxToolRounds = 5
)

var ErrNoAPIKey = errors.New("GEMINI_API_KEY is not configured")

// Assistant runs one chat session per question. Price changes go through
// the processor so they are stamped and reach the terminals on their next
// pull like any other update.
type Assistant struct {
	db     *gorm.DB
	proc   *processor.Processor
	apiKey string
	now    func() time.Time
	log    *slog.Logger
}

func NewAssistant(db *gorm.DB, proc *processor.Processor, apiKey string, log *slog.Logger) *Assistant {
	if log == nil {
		log = slog.Default()
	}
	return &Assistant{db: db, proc: proc, apiKey: apiKey, now: time.Now, log: log}
}

func (a *Assistant) Configured() bool { return a.apiKey != "" }

func (a *Assistant) systemPrompt(userMessage string) string {
	return fmt.Sprintf(`SYSTEM: Today is %s. You are the assistant of a shop's back office.

	RULES:
	1. UPDATE: If a user asks to change a product price by NAME, do NOT ask for the ID.
	   - Call 'check_inventory' to find the ID.
	   - Call 'update_product_price' using that ID.

	2. READ: For PRICE, STOCK or DETAILS of a product call 'check_inventory' and read the list.

	3. SALES: For sales, revenue, tax or expenses use 'get_sales_report'.

	4. RESTOCK: For what needs reordering use 'low_stock'.

	5. CREDIT: For money owed by customers use 'credit_summary'.

	USER: %s`, a.now().Format("2006-01-02"), userMessage)
}

func tools() []*genai.Tool {
	return []*genai.Tool{{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        "check_inventory",
				Description: "Get the full inventory list. Use this to find ANY product details like ID, Name, Price, Category or Stock.",
			},
			{
				Name:        "low_stock",
				Description: "List products whose stock is at or below their reorder level.",
			},
			{
				Name:        "credit_summary",
				Description: "Total outstanding customer credit and the customers who still owe money.",
			},
			{
				Name:        "update_product_price",
				Description: "Update the price of a specific product using its ID",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"product_id": {Type: genai.TypeString, Description: "ID of the product"},
						"new_price":  {Type: genai.TypeNumber, Description: "New price"},
					},
					Required: []string{"product_id", "new_price"},
				},
			},
			{
				Name:        "get_sales_report",
				Description: "Get sales revenue, tax, payment split and expenses for a date range.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"start_date": {Type: genai.TypeString, Description: "Start date (YYYY-MM-DD)"},
						"end_date":   {Type: genai.TypeString, Description: "End date (YYYY-MM-DD)"},
					},
					Required: []string{"start_date", "end_date"},
				},
			},
		},
	}}
}

// Ask answers userMessage, executing any tool calls the model makes.
func (a *Assistant) Ask(ctx context.Context, userMessage string) (string, error) {
	if !a.Configured() {
		return "", ErrNoAPIKey
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(a.apiKey))
	if err != nil {
		return "", err
	}
	defer client.Close()

	model := client.GenerativeModel(modelName)
	model.Tools = tools()
	session := model.StartChat()

	resp, err := session.SendMessage(ctx, genai.Text(a.systemPrompt(userMessage)))
	if err != nil {
		return "", err
	}

	for round := 0; round < maxToolRounds; round++ {
		calls := functionCalls(resp)
		if len(calls) == 0 {
			return textOf(resp), nil
		}
		replies := make([]genai.Part, 0, len(calls))
		for _, call := range calls {
			a.log.Info("assistant tool call", "tool", call.Name)
			replies = append(replies, genai.FunctionResponse{
				Name:     call.Name,
				Response: a.executeTool(ctx, call.Name, call.Args),
			})
		}
		if resp, err = session.SendMessage(ctx, replies...); err != nil {
			return "", err
		}
	}
	return textOf(resp), nil
}

func functionCalls(resp *genai.GenerateContentResponse) []genai.FunctionCall {
	var calls []genai.FunctionCall
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if fc, ok := part.(genai.FunctionCall); ok {
			calls = append(calls, fc)
		}
	}
	return calls
}

func textOf(resp *genai.GenerateContentResponse) string {
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				return string(txt)
			}
		}
	}
	return "I completed the action."
}

type simpleProduct struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Stock    int     `json:"stock"`
	MinStock int     `json:"minStock"`
	Price    float64 `json:"price"`
}

func simplify(products []models.Product) []simpleProduct {
	out := make([]simpleProduct, 0, len(products))
	for _, p := range products {
		out = append(out, simpleProduct{ID: p.ID, Name: p.Name, Category: p.Category, Stock: p.Stock, MinStock: p.MinStock, Price: p.Price})
	}
	return out
}

// executeTool never fails; errors are reported back to the model.
func (a *Assistant) executeTool(ctx context.Context, name string, args map[string]any) map[string]any {
	switch name {
	case "check_inventory":
		products, err := a.proc.Products(ctx)
		if err != nil {
			return toolError(err)
		}
		return map[string]any{"inventory": simplify(products)}

	case "low_stock":
		products, err := database.LowStockProducts(ctx, a.db)
		if err != nil {
			return toolError(err)
		}
		return map[string]any{"products": simplify(products)}

	case "credit_summary":
		total, err := database.OutstandingCredit(ctx, a.db)
		if err != nil {
			return toolError(err)
		}
		var owing []models.CreditCustomer
		if err := a.db.WithContext(ctx).Where("balance > 0").Order("balance DESC").Find(&owing).Error; err != nil {
			return toolError(err)
		}
		customers := make([]map[string]any, 0, len(owing))
		for _, c := range owing {
			customers = append(customers, map[string]any{"id": c.ID, "name": c.Name, "phone": c.Phone, "balance": c.Balance})
		}
		return map[string]any{"outstanding": total, "customers": customers}

	case "update_product_price":
		return a.updatePrice(ctx, args)

	case "get_sales_report":
		startStr, _ := args["start_date"].(string)
		endStr, _ := args["end_date"].(string)
		start, err1 := time.Parse("2006-01-02", startStr)
		end, err2 := time.Parse("2006-01-02", endStr)
		if err1 != nil || err2 != nil {
			return map[string]any{"error": "Dates must be in YYYY-MM-DD format."}
		}
		end = end.Add(24*time.Hour - time.Nanosecond)

		report, err := database.GetSalesReport(ctx, a.db, start, end)
		if err != nil {
			return toolError(err)
		}
		return map[string]any{
			"revenue":     report.TotalRevenue,
			"tax":         report.TotalTax,
			"sales_count": report.TotalCount,
			"by_method":   report.ByMethod,
			"expenses":    report.Expenses,
		}
	}
	return map[string]any{"error": "unknown tool " + name}
}

func (a *Assistant) updatePrice(ctx context.Context, args map[string]any) map[string]any {
	id, _ := args["product_id"].(string)
	price, ok := args["new_price"].(float64)
	if id == "" || !ok {
		return map[string]any{"error": "product_id and new_price are required"}
	}
	if price < 0 {
		return map[string]any{"error": "price must not be negative"}
	}

	var count int64
	if err := a.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return toolError(err)
	}
	if count == 0 {
		return map[string]any{"status": "Product ID not found"}
	}

	op, err := models.NewOperation(models.OpUpdateProduct, models.Update{ID: id, Updates: map[string]any{"price": price}})
	if err != nil {
		return toolError(err)
	}
	op.OpID = "assistant-" + id
	res := a.proc.Apply(ctx, []models.SyncOperation{op})[0]
	if res.Status != models.ResultOK {
		return map[string]any{"status": "failed", "error": res.Error}
	}
	return map[string]any{"status": "Success", "new_price": price}
}

func toolError(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}
