package executor

import "testing"

func seedRanked(t *testing.T, e *Executor) {
	t.Helper()
	mustExec(t, e, "CREATE TABLE orders (id INT PRIMARY KEY, customer_id INT, amount INT)")
	mustExec(t, e, "INSERT INTO orders (id, customer_id, amount) VALUES (1, 1, 10)")
	mustExec(t, e, "INSERT INTO orders (id, customer_id, amount) VALUES (2, 1, 30)")
	mustExec(t, e, "INSERT INTO orders (id, customer_id, amount) VALUES (3, 1, 30)")
	mustExec(t, e, "INSERT INTO orders (id, customer_id, amount) VALUES (4, 2, 5)")
}

func TestExecuteRowNumberPartitionedAndOrdered(t *testing.T) {
	e := newTestExecutor(t)
	seedRanked(t, e)

	res := mustExec(t, e, "SELECT id, ROW_NUMBER() OVER (PARTITION BY customer_id ORDER BY amount) AS rn FROM orders")
	rn := map[int64]int64{}
	for _, r := range res.Rows {
		rn[r["id"].(int64)] = r["rn"].(int64)
	}
	if rn[4] != 1 {
		t.Fatalf("customer 2's only row should be rn=1, got %v", rn[4])
	}
	if rn[1] != 1 {
		t.Fatalf("customer 1's cheapest order should be rn=1, got %v", rn[1])
	}
}

func TestExecuteRankHandlesTies(t *testing.T) {
	e := newTestExecutor(t)
	seedRanked(t, e)

	res := mustExec(t, e, "SELECT id, RANK() OVER (PARTITION BY customer_id ORDER BY amount) AS r FROM orders WHERE customer_id = 1")
	ranks := map[int64]int64{}
	for _, row := range res.Rows {
		ranks[row["id"].(int64)] = row["r"].(int64)
	}
	if ranks[1] != 1 {
		t.Fatalf("order 1 (amount 10) should rank 1, got %v", ranks[1])
	}
	if ranks[2] != 2 || ranks[3] != 2 {
		t.Fatalf("orders 2 and 3 tie on amount 30 and should both rank 2, got %v and %v", ranks[2], ranks[3])
	}
}

func TestExecuteLagLeadDefaultOffset(t *testing.T) {
	e := newTestExecutor(t)
	seedRanked(t, e)

	res := mustExec(t, e, "SELECT id, LAG(amount) OVER (PARTITION BY customer_id ORDER BY amount) AS prev FROM orders WHERE customer_id = 1")
	prev := map[int64]any{}
	for _, row := range res.Rows {
		prev[row["id"].(int64)] = row["prev"]
	}
	if prev[1] != nil {
		t.Fatalf("first row in the partition should have a nil LAG, got %v", prev[1])
	}
	if prev[2] != int64(10) {
		t.Fatalf("second row's LAG should be the first row's amount (10), got %v", prev[2])
	}
}
