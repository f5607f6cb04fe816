package executor

import "testing"

func seedOrders(t *testing.T, e *Executor) {
	t.Helper()
	mustExec(t, e, "CREATE TABLE orders (id INT PRIMARY KEY, customer_id INT, amount INT)")
	mustExec(t, e, "INSERT INTO orders (id, customer_id, amount) VALUES (1, 1, 100)")
	mustExec(t, e, "INSERT INTO orders (id, customer_id, amount) VALUES (2, 1, 50)")
	mustExec(t, e, "INSERT INTO orders (id, customer_id, amount) VALUES (3, 2, 10)")
}

func TestExecuteGroupBySum(t *testing.T) {
	e := newTestExecutor(t)
	seedOrders(t, e)

	res := mustExec(t, e, "SELECT customer_id, SUM(amount) AS total FROM orders GROUP BY customer_id")
	totals := map[int64]int64{}
	for _, r := range res.Rows {
		totals[r["customer_id"].(int64)] = r["total"].(int64)
	}
	if totals[1] != 150 || totals[2] != 10 {
		t.Fatalf("totals = %v, want {1:150, 2:10}", totals)
	}
}

func TestExecuteBareCountOverEmptyTableReturnsOneZeroRow(t *testing.T) {
	e := newTestExecutor(t)
	mustExec(t, e, "CREATE TABLE orders (id INT PRIMARY KEY, customer_id INT, amount INT)")
	res := mustExec(t, e, "SELECT COUNT(*) AS n FROM orders")
	if len(res.Rows) != 1 || res.Rows[0]["n"] != int64(0) {
		t.Fatalf("Rows = %+v, want a single row with n=0", res.Rows)
	}
}

func TestExecuteHavingFiltersGroups(t *testing.T) {
	e := newTestExecutor(t)
	seedOrders(t, e)

	res := mustExec(t, e, "SELECT customer_id, SUM(amount) AS total FROM orders GROUP BY customer_id HAVING SUM(amount) > 100")
	if len(res.Rows) != 1 || res.Rows[0]["customer_id"] != int64(1) {
		t.Fatalf("Rows = %+v, want only customer 1", res.Rows)
	}
}

func TestExecuteAvgMinMax(t *testing.T) {
	e := newTestExecutor(t)
	seedOrders(t, e)

	res := mustExec(t, e, "SELECT MIN(amount) AS lo, MAX(amount) AS hi, AVG(amount) AS avg FROM orders")
	row := res.Rows[0]
	if row["lo"] != int64(10) || row["hi"] != int64(100) {
		t.Fatalf("row = %+v, want lo=10 hi=100", row)
	}
	if row["avg"].(float64) < 53 || row["avg"].(float64) > 54 {
		t.Fatalf("avg = %v, want ~53.3", row["avg"])
	}
}
