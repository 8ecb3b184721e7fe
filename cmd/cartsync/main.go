// cmd/cartsync/main.go
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	meddom "medicart/internal/domain/medicine"
	"medicart/internal/infra/config"
	"medicart/internal/platform/di"
)

// cartsync is a line-oriented console around the cart engine, mainly for ops
// and local development: it drives the same session object the storefront
// embeds, against either the REST backend or Firestore directly.
func main() {
	_ = godotenv.Load()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if strings.TrimSpace(os.Getenv("LOG_LEVEL")) == "debug" {
		logrus.SetLevel(logrus.DebugLevel)
	}
	log := logrus.WithField("app", "cartsync")

	ctx := context.Background()
	cfg := config.Load()

	customerID := strings.TrimSpace(os.Getenv("CART_CUSTOMER_ID"))

	session, err := di.NewSession(ctx, cfg, log, customerID)
	if err != nil {
		log.WithError(err).Fatal("session build failed")
	}
	defer session.Close()

	// toast stream → console
	go func() {
		for n := range session.Toasts.Notices() {
			fmt.Printf("  [%s] %s\n", n.Level, n.Message)
		}
	}()

	// optional: pre-seeded ID token for the REST backend
	if tok := strings.TrimSpace(os.Getenv("STOREFRONT_ID_TOKEN")); tok != "" && session.Auth != nil {
		if err := session.Auth.SignIn(ctx, tok); err != nil {
			log.WithError(err).Warn("sign-in with STOREFRONT_ID_TOKEN failed")
		}
	}

	if err := session.CartUC.Initialize(ctx); err != nil {
		log.WithError(err).Warn("cart initialize failed")
	}

	fmt.Println("cartsync console — commands: ls add set rm clear refresh checkout signin signout pending quit")
	printCart(session)

	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			return
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit", "exit":
			return

		case "ls":
			printCart(session)

		case "add":
			// add <medicineId> <qty> [name] [price]
			if len(fields) < 3 {
				fmt.Println("usage: add <medicineId> <qty> [name] [price]")
				continue
			}
			qty, _ := strconv.Atoi(fields[2])
			med := meddom.Medicine{ID: fields[1]}
			if len(fields) >= 4 {
				med.Name = fields[3]
			}
			if len(fields) >= 5 {
				if p, err := strconv.ParseFloat(fields[4], 64); err == nil {
					med.Price = &p
				}
			}
			_ = session.CartUC.AddItem(ctx, med, qty)
			printCart(session)

		case "set":
			if len(fields) < 3 {
				fmt.Println("usage: set <medicineId> <qty>")
				continue
			}
			qty, _ := strconv.Atoi(fields[2])
			_ = session.CartUC.UpdateQuantity(ctx, fields[1], qty)
			printCart(session)

		case "rm":
			if len(fields) < 2 {
				fmt.Println("usage: rm <medicineId>")
				continue
			}
			_ = session.CartUC.RemoveItem(ctx, fields[1])
			printCart(session)

		case "clear":
			_ = session.CartUC.Clear(ctx)
			printCart(session)

		case "refresh":
			_ = session.CartUC.ForceRefresh(ctx)
			printCart(session)

		case "checkout":
			// simulate post-order cleanup (server cart already emptied)
			session.CartUC.ClearAfterCheckout()
			printCart(session)

		case "signin":
			if len(fields) < 2 || session.Auth == nil {
				fmt.Println("usage: signin <idToken>  (REST backend only)")
				continue
			}
			if err := session.Auth.SignIn(ctx, fields[1]); err != nil {
				fmt.Println("sign-in failed:", err)
			}

		case "signout":
			session.SignOut()
			printCart(session)

		case "pending":
			fmt.Printf("pending ops: %d (syncing=%v)\n", session.CartUC.PendingOps(), session.CartUC.Syncing())

		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}

func printCart(s *di.Session) {
	view, err := s.CartQ.View()
	if err != nil {
		fmt.Println("view error:", err)
		return
	}

	if len(view.Items) == 0 {
		fmt.Println("  (cart is empty)")
	}
	for _, it := range view.Items {
		price := "-"
		if it.Price != nil {
			price = strconv.FormatFloat(*it.Price, 'f', 2, 64)
		}
		name := it.Name
		if name == "" {
			name = it.MedicineID
		}
		fmt.Printf("  %-24s x%-3d unit=%-8s subtotal=%.2f\n", name, it.Quantity, price, it.Subtotal)
	}
	fmt.Printf("  items=%d total=%.2f", view.ItemCount, view.TotalPrice)
	if view.Error != "" {
		fmt.Printf("  [!] %s", view.Error)
	}
	fmt.Println()
}
