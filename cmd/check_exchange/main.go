package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/vitos/crypto_signal_trader/internal/infrastructure/exchange"
	"go.uber.org/zap"
)

// Connectivity check for a Binance futures account: reads the API keys
// from the environment and exercises the public and private endpoints.
func main() {
	symbol := flag.String("symbol", "BTCUSDT", "market to probe")
	flag.Parse()

	apiKey := os.Getenv("BINANCE_API_KEY")
	apiSecret := os.Getenv("BINANCE_API_SECRET")
	if apiKey == "" || apiSecret == "" {
		fmt.Println("BINANCE_API_KEY and BINANCE_API_SECRET must be set")
		os.Exit(1)
	}

	fmt.Printf("Testing Binance Futures Interaction...\n")
	fmt.Printf("Endpoint: %s\n", exchange.BinanceFuturesBaseURL)
	fmt.Printf("API Key: %s...\n", apiKey[:4])

	adapter := exchange.NewBinanceFutures(apiKey, apiSecret, exchange.BinanceFuturesBaseURL, exchange.BinanceFuturesWSURL, zap.NewNop())
	ctx := context.Background()

	// 1. Check Public Endpoint (Price)
	price, err := adapter.GetLastPrice(ctx, *symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get price: %v\n", err)
	} else {
		fmt.Printf("✅ Current Price (%s): %f\n", *symbol, price)
	}

	// 2. Check Private Endpoint (Balance)
	balances, err := adapter.FetchBalance(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to get balance: %v\n", err)
	} else {
		fmt.Printf("✅ Free Balance (USDT): %f\n", balances["USDT"])
	}

	// 3. Check Private Endpoint (Positions)
	positions, err := adapter.GetPositions(ctx, *symbol)
	if err != nil {
		fmt.Printf("❌ Failed to get positions: %v\n", err)
	} else if len(positions) == 0 {
		fmt.Printf("✅ Positions (%s): none open\n", *symbol)
	} else {
		for _, pos := range positions {
			fmt.Printf("✅ Position (%s): Size=%f, Side=%s, Entry=%f, PnL=%f\n",
				pos.Symbol, pos.Size, pos.Side, pos.EntryPrice, pos.UnrealizedPnL)
		}
	}
}
