package server

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kataras/iris/v12"

	"github.com/example/vintagemart/internal/auth"
	"github.com/example/vintagemart/internal/config"
	"github.com/example/vintagemart/internal/infra/mq"
	"github.com/example/vintagemart/internal/infra/redis"
	"github.com/example/vintagemart/internal/middleware"
	"github.com/example/vintagemart/internal/repository/mysql"
	"github.com/example/vintagemart/internal/service"
)

// GuestSessionHeader 游客会话头，服务端签发后由客户端每次原样带回
const GuestSessionHeader = "X-Guest-Session"

const identityKey = "identity"

// statusOf 服务层错误分类到 HTTP 状态码的映射
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return 422
	case errors.Is(err, service.ErrUnavailable):
		return 409
	case errors.Is(err, service.ErrNotFound):
		return 404
	case errors.Is(err, service.ErrUnauthorized), errors.Is(err, auth.ErrUnauthorized):
		return 401
	default:
		return 500
	}
}

func fail(ctx iris.Context, err error) {
	code := statusOf(err)
	ctx.StopWithJSON(code, iris.Map{"code": code, "msg": err.Error()})
}

func identityOf(ctx iris.Context) auth.Identity {
	if id, ok := ctx.Values().Get(identityKey).(auth.Identity); ok {
		return id
	}
	return auth.Identity{Kind: auth.KindAnonymous}
}

// RegisterRoutes 注册前台 HTTP 路由
func RegisterRoutes(app *iris.Application, cfg *config.Config) {
	// 初始化基础设施
	db := mysql.Init(&cfg.MySQL)
	redisClient := redis.Init(&cfg.Redis)
	mqConn := mq.Init(&cfg.RabbitMQ)

	// 仓储与服务
	userRepo := mysql.NewUserRepository(db)
	productRepo := mysql.NewProductRepository(db)
	orderRepo := mysql.NewOrderRepository(db)
	cartRepo := mysql.NewCartRepository(db)

	tokenCache := auth.NewTokenCache(redisClient, time.Duration(cfg.JWT.TokenCacheTTLSeconds)*time.Second)
	sessions := auth.NewSessionStore(redisClient, time.Duration(cfg.Session.TTLSeconds)*time.Second)
	resolver := auth.NewResolver(&cfg.JWT, tokenCache, sessions)

	userSvc := service.NewUserService(userRepo, &cfg.JWT)
	productSvc := service.NewProductService(productRepo)
	cartSvc := service.NewCartService(db, cartRepo, productRepo)
	mergeSvc := service.NewMergeService(db, cartRepo)
	notifier := service.NewMQNotifier(mqConn)
	checkoutSvc := service.NewCheckoutService(db, cartRepo, notifier, &cfg.Checkout)
	orderSvc := service.NewOrderService(orderRepo, productRepo)

	api := app.Party("/api")

	// 健康检查
	api.Get("/health", func(ctx iris.Context) {
		ctx.JSON(iris.Map{
			"code": 0,
			"msg":  "ok",
		})
	})

	// 用户注册/登录
	api.Post("/register", func(ctx iris.Context) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		u, err := userSvc.Register(ctx.Request().Context(), req.Email, req.Password)
		if err != nil {
			fail(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": u})
	})

	api.Post("/login", func(ctx iris.Context) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		token, err := userSvc.Login(ctx.Request().Context(), req.Email, req.Password)
		if err != nil {
			ctx.StopWithJSON(401, iris.Map{"code": 401, "msg": err.Error()})
			return
		}

		// 登录前是游客身份的话，顺手把游客购物车并进用户购物车
		if raw := ctx.GetHeader(GuestSessionHeader); raw != "" {
			if sid, perr := uuid.Parse(raw); perr == nil {
				if claims, cerr := auth.ParseToken(&cfg.JWT, token); cerr == nil {
					if _, merr := mergeSvc.MergeGuestCart(ctx.Request().Context(), claims.UserID, sid); merr != nil {
						// 合并失败不挡登录，客户端可以再调一次 /cart/merge
						ctx.Application().Logger().Warnf("cart merge on login failed: %v", merr)
					}
				}
			}
		}

		ctx.JSON(iris.Map{"code": 0, "data": iris.Map{"token": token}})
	})

	// 商品列表（支持按分类筛选）与详情，无需身份
	api.Get("/products", func(ctx iris.Context) {
		category := ctx.URLParam("category")
		list, err := productSvc.ListByCategory(ctx.Request().Context(), category)
		if err != nil {
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": list})
	})

	api.Get("/products/{id:string}", func(ctx iris.Context) {
		pid, err := uuid.Parse(ctx.Params().Get("id"))
		if err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": "无效商品ID"})
			return
		}
		p, err := productSvc.GetByID(ctx.Request().Context(), pid)
		if err != nil {
			fail(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": p})
	})

	// 宽松身份路由：登录用户或游客都可用。token 失效静默降级，
	// 绝不因为带了个过期 token 就把查看购物车的请求打回去。
	lenientAPI := api.Party("/", func(ctx iris.Context) {
		identity := resolver.Resolve(
			ctx.Request().Context(),
			ctx.GetHeader("Authorization"),
			ctx.GetHeader(GuestSessionHeader),
		)
		ctx.Values().Set(identityKey, identity)
		// 游客会话标识镜像回响应头，客户端负责存好下次带来
		if identity.Kind == auth.KindGuest {
			ctx.Header(GuestSessionHeader, identity.GuestSessionID.String())
		}
		ctx.Next()
	})

	// ensureOwner 匿名请求在首次加购时就地签发游客会话
	ensureOwner := func(ctx iris.Context) auth.Identity {
		identity := identityOf(ctx)
		if identity.Kind != auth.KindAnonymous {
			return identity
		}
		sid, err := sessions.Issue(ctx.Request().Context())
		if err != nil {
			// 登记失败不致命，会话标识照发
			ctx.Application().Logger().Warnf("guest session register failed: %v", err)
			sid = uuid.New()
		}
		identity = auth.Identity{Kind: auth.KindGuest, GuestSessionID: sid}
		ctx.Values().Set(identityKey, identity)
		ctx.Header(GuestSessionHeader, sid.String())
		return identity
	}

	// 查看购物车
	lenientAPI.Get("/cart", func(ctx iris.Context) {
		view, err := cartSvc.View(ctx.Request().Context(), identityOf(ctx))
		if err != nil {
			if errors.Is(err, service.ErrUnauthorized) {
				// 匿名访客看到的就是一辆空车
				ctx.JSON(iris.Map{"code": 0, "data": service.CartView{Items: []service.CartLine{}}})
				return
			}
			fail(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": view})
	})

	// 加入购物车
	lenientAPI.Post("/cart/items", func(ctx iris.Context) {
		var req struct {
			ProductID string `json:"product_id"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		pid, err := uuid.Parse(req.ProductID)
		if err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": "无效商品ID"})
			return
		}
		view, err := cartSvc.AddItem(ctx.Request().Context(), ensureOwner(ctx), pid)
		if err != nil {
			fail(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": view})
	})

	// 移出购物车
	lenientAPI.Delete("/cart/items/{id:string}", func(ctx iris.Context) {
		pid, err := uuid.Parse(ctx.Params().Get("id"))
		if err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": "无效商品ID"})
			return
		}
		view, err := cartSvc.RemoveItem(ctx.Request().Context(), identityOf(ctx), pid)
		if err != nil {
			fail(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": view})
	})

	// 结算。宽松身份：用户直接下单，游客要在表单里带邮箱，匿名硬失败。
	lenientAPI.Post("/checkout", middleware.CheckoutRateLimit(), func(ctx iris.Context) {
		var form service.CheckoutForm
		if err := ctx.ReadJSON(&form); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		result, err := checkoutSvc.PlaceOrder(ctx.Request().Context(), identityOf(ctx), &form)
		if err != nil {
			fail(ctx, err)
			return
		}
		ctx.StatusCode(iris.StatusCreated)
		ctx.JSON(iris.Map{"code": 0, "data": result})
	})

	// 订单查询：用户查自己的，游客凭会话头查自己的
	lenientAPI.Get("/orders", func(ctx iris.Context) {
		list, err := orderSvc.ListByIdentity(ctx.Request().Context(), identityOf(ctx))
		if err != nil {
			fail(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": list})
	})

	lenientAPI.Get("/orders/{id:string}", func(ctx iris.Context) {
		oid, err := uuid.Parse(ctx.Params().Get("id"))
		if err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": "无效订单ID"})
			return
		}
		details, err := orderSvc.GetDetails(ctx.Request().Context(), identityOf(ctx), oid)
		if err != nil {
			fail(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": details})
	})

	// 严格身份路由：必须是有效登录态
	strictAPI := api.Party("/", func(ctx iris.Context) {
		identity, err := resolver.RequireUser(ctx.Request().Context(), ctx.GetHeader("Authorization"))
		if err != nil {
			ctx.StopWithJSON(401, iris.Map{"code": 401, "msg": "missing or invalid token"})
			return
		}
		ctx.Values().Set(identityKey, identity)
		ctx.Next()
	})

	// 显式合并游客购物车（客户端登录后补调，或登录时合并失败的重试入口）
	strictAPI.Post("/cart/merge", func(ctx iris.Context) {
		var req struct {
			GuestSessionID string `json:"guest_session_id"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		raw := req.GuestSessionID
		if raw == "" {
			raw = ctx.GetHeader(GuestSessionHeader)
		}
		sid, err := uuid.Parse(raw)
		if err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": "无效游客会话标识"})
			return
		}
		identity := identityOf(ctx)
		if _, err := mergeSvc.MergeGuestCart(ctx.Request().Context(), identity.UserID, sid); err != nil {
			fail(ctx, err)
			return
		}
		view, err := cartSvc.View(ctx.Request().Context(), identity)
		if err != nil {
			fail(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": view})
	})
}
