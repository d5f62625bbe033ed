// Package component provides the component lifecycle used by posthoginit:
// owners, mount-time effects, cleanups and rendered output.
//
// A component renders once when mounted. Effects registered during render
// with Ctx.UseEffect run after the render completes, so they observe a
// painted tree. The Cleanup an effect returns runs when the component
// unmounts.
//
//	var Banner = component.Func(func(ctx component.Ctx) *component.VNode {
//	    ctx.UseEffect(func() component.Cleanup {
//	        h := ctx.Env().SetTimeout(time.Second, show)
//	        return func() { h.Cancel() }
//	    })
//	    return component.Element("div", component.Text("hello"))
//	})
//
//	inst := component.Mount(env, Banner)
//	defer inst.Unmount()
//
// Mount, Unmount and every effect run on the host loop goroutine.
package component
