// Package discovery finds projectors advertising PJLink over mDNS.
//
// Discovery is best-effort convenience for operators: nothing else in
// the stack depends on it, and devices that do not advertise are still
// reachable by address. Browse streams instances as they appear; Find
// runs a bounded one-shot scan.
//
//	projectors, err := discovery.FindProjectors(ctx, 3*time.Second)
//	for _, p := range projectors {
//		fmt.Println(p.Name, p.Endpoint())
//	}
package discovery
