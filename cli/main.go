package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Styling
var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#0a84ff")).
			Padding(0, 1)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#30d158")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#ff453a")).
			Padding(0, 1)
)

const pollInterval = 3 * time.Second

// Model defines the application state
type Model struct {
	mainMenu    list.Model
	menuTable   table.Model
	menuItems   []MenuItem
	historyList list.Model
	quantity    textinput.Model
	spinner     spinner.Model
	client      *ApiClient

	selected MenuItem // item being added to the cart
	cartID   string   // pending order the cart adds to
	order    *Order   // order shown in the detail view
	pollGen  int

	loading     bool
	currentView string
	status      string
	error       string
}

// item represents a list item
type item struct {
	title, desc string
}

// FilterValue implements list.Item interface
func (i item) FilterValue() string { return i.title }

// Title implements list.Item interface
func (i item) Title() string { return i.title }

// Description implements list.Item interface
func (i item) Description() string { return i.desc }

// Initialize the model
func initialModel(client *ApiClient) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	items := []list.Item{
		item{title: "Menu", desc: "Browse the menu and add items to your order"},
		item{title: "Current Order", desc: "Track or cancel your pending order"},
		item{title: "History", desc: "Orders placed from this terminal"},
		item{title: "Exit", desc: "Exit the application"},
	}
	mainMenu := list.New(items, list.NewDefaultDelegate(), 0, 0)
	mainMenu.Title = "Canteen"

	columns := []table.Column{
		{Title: "Item", Width: 24},
		{Title: "Price", Width: 10},
		{Title: "Stock", Width: 8},
		{Title: "Description", Width: 36},
	}
	menuTable := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	historyList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	historyList.Title = "Your Orders"

	ti := textinput.New()
	ti.Placeholder = "1"
	ti.CharLimit = 3
	ti.Width = 5

	return Model{
		mainMenu:    mainMenu,
		menuTable:   menuTable,
		historyList: historyList,
		quantity:    ti,
		spinner:     s,
		client:      client,
		currentView: "main",
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tea.EnterAltScreen)
}

// Update handles UI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.mainMenu.SetSize(msg.Width-h, msg.Height-v)
		m.historyList.SetSize(msg.Width-h, msg.Height-v-2)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case menuMsg:
		m.loading = false
		m.menuItems = msg.items
		m.menuTable.SetRows(menuRows(msg.items))
		return m, nil
	case orderPlacedMsg:
		m.loading = false
		m.error = ""
		m.cartID = msg.id
		m.status = fmt.Sprintf("Order placed. Pay before %s", msg.expiresAt.Local().Format("15:04:05"))
		m.currentView = "menu"
		return m, fetchMenu(m.client)
	case itemsAddedMsg:
		m.loading = false
		m.error = ""
		m.status = fmt.Sprintf("Added to order. New total %s", formatPaise(msg.total))
		m.currentView = "menu"
		return m, fetchMenu(m.client)
	case orderDetailMsg:
		m.loading = false
		order := msg.order
		m.order = &order
		if m.currentView == "order" && !isTerminal(order.Status) {
			m.pollGen++
			return m, pollOrder(m.pollGen)
		}
		return m, nil
	case pollMsg:
		if msg.gen != m.pollGen || m.currentView != "order" || m.order == nil {
			return m, nil
		}
		return m, fetchOrderDetails(m.client, m.order.ID)
	case historyMsg:
		m.loading = false
		m.historyList.SetItems(convertOrdersToItems(msg.orders))
		return m, nil
	case errorMsg:
		m.loading = false
		m.status = ""
		m.error = msg.err
		return m, nil
	case confirmMsg:
		m.loading = false
		m.error = ""
		m.status = msg.message
		if m.order != nil {
			return m, fetchOrderDetails(m.client, m.order.ID)
		}
		return m, nil
	}

	return m.updateActive(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.currentView {
	case "main":
		switch key {
		case "q":
			return m, tea.Quit
		case "enter":
			selected, ok := m.mainMenu.SelectedItem().(item)
			if !ok {
				return m, nil
			}
			m.error, m.status = "", ""
			switch selected.title {
			case "Exit":
				return m, tea.Quit
			case "Menu":
				m.currentView = "menu"
				m.loading = true
				return m, fetchMenu(m.client)
			case "Current Order":
				if m.cartID == "" {
					m.error = "No order yet. Add something from the menu first"
					return m, nil
				}
				return m.openOrder(m.cartID)
			case "History":
				m.currentView = "history"
				m.loading = true
				return m, fetchHistory(m.client)
			}
			return m, nil
		}
	case "menu":
		switch key {
		case "q", "esc":
			m.currentView = "main"
			return m, nil
		case "r":
			m.loading = true
			return m, fetchMenu(m.client)
		case "enter":
			idx := m.menuTable.Cursor()
			if idx < 0 || idx >= len(m.menuItems) {
				return m, nil
			}
			m.selected = m.menuItems[idx]
			m.quantity.SetValue("")
			m.quantity.Focus()
			m.currentView = "quantity"
			return m, textinput.Blink
		}
	case "quantity":
		switch key {
		case "esc":
			m.quantity.Blur()
			m.currentView = "menu"
			return m, nil
		case "enter":
			qty, err := parseQuantity(m.quantity.Value())
			if err != nil {
				m.error = err.Error()
				return m, nil
			}
			m.quantity.Blur()
			m.loading = true
			return m, addToCart(m.client, m.cartID, CartLine{ItemID: m.selected.ID, Quantity: qty})
		}
	case "order":
		switch key {
		case "q", "esc":
			m.currentView = "main"
			m.pollGen++
			return m, nil
		case "r":
			if m.order != nil {
				return m, fetchOrderDetails(m.client, m.order.ID)
			}
		case "c":
			if m.order != nil && m.order.Status == "pending" {
				m.loading = true
				return m, cancelOrder(m.client, m.order.ID)
			}
		}
		return m, nil
	case "history":
		switch key {
		case "q", "esc":
			if m.historyList.FilterState() == list.Filtering {
				break
			}
			m.currentView = "main"
			return m, nil
		case "enter":
			if selected, ok := m.historyList.SelectedItem().(orderItem); ok {
				return m.openOrder(selected.id)
			}
		}
	}

	return m.updateActive(msg)
}

func (m Model) openOrder(id string) (tea.Model, tea.Cmd) {
	m.currentView = "order"
	m.order = nil
	m.loading = true
	m.pollGen++
	return m, fetchOrderDetails(m.client, id)
}

func (m Model) updateActive(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.currentView {
	case "main":
		m.mainMenu, cmd = m.mainMenu.Update(msg)
	case "menu":
		m.menuTable, cmd = m.menuTable.Update(msg)
	case "quantity":
		m.quantity, cmd = m.quantity.Update(msg)
	case "history":
		m.historyList, cmd = m.historyList.Update(msg)
	}
	return m, cmd
}

// View renders the UI
func (m Model) View() string {
	var body string
	switch m.currentView {
	case "main":
		body = m.mainMenu.View()
	case "menu":
		body = titleStyle.Render("Menu") + "\n\n" + m.menuTable.View() +
			"\n\nPress 'enter' to add an item, 'r' to refresh, 'esc' to go back"
		if m.cartID != "" {
			body += "\n" + infoStyle.Render("Adding to order "+shortID(m.cartID))
		}
	case "quantity":
		body = titleStyle.Render("Add "+m.selected.Name) + "\n\n" +
			fmt.Sprintf("Price: %s each, %d left\n\n", formatRupees(m.selected.PriceRupees), m.selected.StockCount) +
			"Quantity: " + m.quantity.View() +
			"\n\nPress 'enter' to add, 'esc' to cancel"
	case "order":
		if m.order == nil {
			body = titleStyle.Render("Order") + "\n\n"
		} else {
			body = orderDetailView(*m.order, time.Now())
		}
	case "history":
		body = m.historyList.View() + "\nPress 'enter' to view an order, 'esc' to go back"
	default:
		body = "Loading..."
	}

	if m.loading {
		body += "\n" + m.spinner.View() + " Loading..."
	}
	if m.status != "" {
		body += "\n" + successStyle.Render(m.status)
	}
	if m.error != "" {
		body += "\n" + errorStyle.Render(m.error)
	}
	return docStyle.Render(body)
}

// Custom message types for the tea.Model
type menuMsg struct {
	items []MenuItem
}

type orderPlacedMsg struct {
	id        string
	expiresAt time.Time
}

type itemsAddedMsg struct {
	total int64
}

type orderDetailMsg struct {
	order Order
}

type historyMsg struct {
	orders []Order
}

type pollMsg struct {
	gen int
}

type errorMsg struct {
	err string
}

type confirmMsg struct {
	message string
}

// orderItem represents an order in the history list
type orderItem struct {
	id     string
	title  string
	desc   string
	status string
}

func (i orderItem) Title() string       { return i.title }
func (i orderItem) Description() string { return i.desc }
func (i orderItem) FilterValue() string { return i.title }

func fetchMenu(client *ApiClient) tea.Cmd {
	return func() tea.Msg {
		items, err := client.GetMenu()
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Error fetching menu: %v", err)}
		}
		return menuMsg{items: items}
	}
}

// addToCart adds to the open order, or places a new one when there is none
// or the previous order is no longer pending
func addToCart(client *ApiClient, cartID string, line CartLine) tea.Cmd {
	return func() tea.Msg {
		lines := []CartLine{line}
		if cartID != "" {
			total, err := client.AddItems(cartID, lines)
			if err == nil {
				return itemsAddedMsg{total: total}
			}
			if !IsConflict(err) {
				return errorMsg{err: fmt.Sprintf("Error adding items: %v", err)}
			}
		}

		id, expiresAt, err := client.PlaceOrder(lines)
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Error placing order: %v", err)}
		}
		return orderPlacedMsg{id: id, expiresAt: expiresAt}
	}
}

// fetchOrderDetails retrieves details for a specific order
func fetchOrderDetails(client *ApiClient, id string) tea.Cmd {
	return func() tea.Msg {
		order, err := client.GetOrder(id)
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Error fetching order details: %v", err)}
		}
		return orderDetailMsg{order: *order}
	}
}

func pollOrder(gen int) tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		return pollMsg{gen: gen}
	})
}

func fetchHistory(client *ApiClient) tea.Cmd {
	return func() tea.Msg {
		page, err := client.History(1)
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Error fetching history: %v", err)}
		}
		return historyMsg{orders: page.Items}
	}
}

// cancelOrder cancels an order
func cancelOrder(client *ApiClient, id string) tea.Cmd {
	return func() tea.Msg {
		status, err := client.CancelOrder(id)
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Error cancelling order: %v", err)}
		}
		return confirmMsg{message: "Order " + status}
	}
}

func menuRows(items []MenuItem) []table.Row {
	rows := make([]table.Row, len(items))
	for i, it := range items {
		rows[i] = table.Row{it.Name, formatRupees(it.PriceRupees), strconv.Itoa(it.StockCount), it.Description}
	}
	return rows
}

// convertOrdersToItems converts API orders to list items
func convertOrdersToItems(orders []Order) []list.Item {
	items := make([]list.Item, len(orders))
	for i, order := range orders {
		count := 0
		for _, line := range order.Items {
			count += line.Quantity
		}
		items[i] = orderItem{
			id:     order.ID,
			title:  fmt.Sprintf("Order %s (%s)", shortID(order.ID), order.Status),
			desc:   fmt.Sprintf("%d items - %s - %s", count, formatPaise(order.TotalPricePaise), order.CreatedAt.Local().Format("02 Jan 15:04")),
			status: order.Status,
		}
	}
	return items
}

// orderDetailView creates a detailed view of an order
func orderDetailView(order Order, now time.Time) string {
	view := titleStyle.Render(fmt.Sprintf("Order %s", shortID(order.ID))) + "\n\n"
	view += fmt.Sprintf("Status: %s\n", order.Status)
	view += fmt.Sprintf("Placed: %s\n", order.CreatedAt.Local().Format(time.RFC1123))
	if order.Status == "pending" {
		view += fmt.Sprintf("Pay within: %s\n", countdown(order.ExpiresAt, now))
	}

	view += "\nItems:\n"
	for i, line := range order.Items {
		view += fmt.Sprintf("%d. %s (x%d) - %s\n", i+1, line.Name, line.Quantity, formatPaise(line.PricePaise*int64(line.Quantity)))
	}
	view += fmt.Sprintf("\nTotal: %s\n", formatPaise(order.TotalPricePaise))

	if order.Status == "pending" {
		view += "\nPress 'c' to cancel the order, 'r' to refresh, 'esc' to go back"
	} else {
		view += "\nPress 'esc' to go back"
	}
	return view
}

// countdown renders the time left until expiresAt as mm:ss
func countdown(expiresAt, now time.Time) string {
	left := expiresAt.Sub(now)
	if left <= 0 {
		return "expired"
	}
	left = left.Round(time.Second)
	return fmt.Sprintf("%02d:%02d", int(left.Minutes()), int(left.Seconds())%60)
}

func parseQuantity(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("quantity must be a whole number of at least 1")
	}
	return n, nil
}

func isTerminal(status string) bool {
	switch status {
	case "completed", "cancelled", "failed":
		return true
	}
	return false
}

func formatPaise(p int64) string {
	return fmt.Sprintf("₹%d.%02d", p/100, p%100)
}

func formatRupees(r float64) string {
	return fmt.Sprintf("₹%.2f", r)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func main() {
	client := NewApiClient()
	if err := client.CheckHealth(); err != nil {
		fmt.Printf("Cannot reach canteen API at %s: %v\n", client.BaseURL, err)
		os.Exit(1)
	}

	p := tea.NewProgram(initialModel(client))
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running program: %v", err)
		os.Exit(1)
	}
}
